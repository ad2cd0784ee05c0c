// Package process runs child processes for the platform daemon.
//
// Manager keeps one long-running service process up when the daemon is
// its own supervisor (the exec backend). The process runs in its own
// process group. Stop sends SIGTERM to the group and escalates to SIGKILL
// after Config.StopTimeout. A process that exits on its own is respawned
// with a doubling delay, and the delay resets once it has stayed up for
// Config.StableAfter. Its stdout and stderr are logged line by line at
// debug level.
//
// Exec runs the short-lived helpers the platform shells out to, such as
// the unique-id lookup, demo scripts and tailscale.
//
//	mgr := process.NewManager(process.DefaultConfig(
//	    "dbus-modbustcp", "/opt/victronenergy/dbus-modbustcp/dbus-modbustcp", nil))
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
