package discovery

import (
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-platform/internal/event"
	"github.com/nerrad567/gray-logic-platform/internal/gate"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
	"github.com/nerrad567/gray-logic-platform/internal/value"
)

const (
	genset   = "com.victronenergy.genset.socketcan_can0_di0"
	dcgenset = "com.victronenergy.dcgenset.ttyUSB0"
	battery1 = "com.victronenergy.battery.socketcan_can1"
	battery2 = "com.victronenergy.battery.ttyO2"
	solar    = "com.victronenergy.solarcharger.ttyO1"
)

type fixture struct {
	tree       *tree.Tree
	generators *gate.Gate
	bms        *gate.Gate
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{
		tree:       tree.New(),
		generators: gate.New("generator-starter"),
		bms:        gate.New("parallel-bms"),
	}
	f.dispatcher = New(Config{
		Rules:         RulesFromConfig(config.Default().Discovery),
		BMSProductIDs: config.Default().Discovery.BMSProductIDs,
		Generators:    f.generators,
		ParallelBMS:   f.bms,
	})
	return f
}

func TestRules_Classify(t *testing.T) {
	rules := RulesFromConfig(config.Default().Discovery)

	tests := []struct {
		id   string
		want Category
	}{
		{genset, CategoryGenerator},
		{dcgenset, CategoryGenerator},
		{battery1, CategoryBattery},
		{solar, CategoryNone},
		{"COM.VICTRONENERGY.GENSET.x", CategoryNone},
		{"com.victronenergy.settings", CategoryNone},
	}
	for _, tt := range tests {
		if got := rules.Classify(tt.id); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestRules_FirstMatchWins(t *testing.T) {
	rules := Rules{
		{Prefix: "com.victronenergy.battery.lynx", Category: CategoryGenerator},
		{Prefix: "com.victronenergy.battery", Category: CategoryBattery},
	}
	if got := rules.Classify("com.victronenergy.battery.lynx1"); got != CategoryGenerator {
		t.Errorf("Classify() = %v, want the first rule's category", got)
	}
}

func TestDispatcher_GensetScenario(t *testing.T) {
	f := newFixture()
	f.dispatcher.Start(f.tree)

	var edges []bool
	f.generators.OnChange(func(active bool) { edges = append(edges, active) })

	f.tree.Appear(genset)
	if f.generators.IsActive() {
		t.Fatal("generator gate active before synchronization")
	}

	f.tree.SetState(genset, event.StateSynchronized)
	if !f.generators.Has(genset) {
		t.Fatal("genset not added on synchronized")
	}

	f.tree.SetState(dcgenset, event.StateSynchronized)
	f.tree.SetState(genset, event.StateDesynchronized)
	if f.generators.Has(genset) || !f.generators.IsActive() {
		t.Errorf("reasons = %v, want only the DC genset", f.generators.Reasons())
	}

	f.tree.Remove(dcgenset)
	if f.generators.IsActive() {
		t.Errorf("gate still active with reasons %v", f.generators.Reasons())
	}

	if !reflect.DeepEqual(edges, []bool{true, false}) {
		t.Errorf("edges = %v, want [true false]", edges)
	}
}

func TestDispatcher_TwoBatteryScenario(t *testing.T) {
	f := newFixture()
	f.dispatcher.Start(f.tree)

	f.tree.Appear(battery1)
	f.tree.Appear(battery2)
	f.tree.SetValue(tree.Path(battery1, ProductIDProperty), value.OfInt(0xA3E5))
	f.tree.SetValue(tree.Path(battery2, ProductIDProperty), value.OfInt(0xB012))

	if got := f.bms.Reasons(); !reflect.DeepEqual(got, []string{battery1}) {
		t.Fatalf("reasons = %v, want [%s]", got, battery1)
	}

	// Second battery reports a BMS model too.
	f.tree.SetValue(tree.Path(battery2, ProductIDProperty), value.OfInt(0xA3E4))
	if len(f.bms.Reasons()) != 2 {
		t.Fatalf("reasons = %v, want both batteries", f.bms.Reasons())
	}

	f.tree.Remove(battery1)
	if f.bms.Has(battery1) || !f.bms.IsActive() {
		t.Errorf("reasons = %v, want only %s", f.bms.Reasons(), battery2)
	}
	if n := f.tree.WatchCount(tree.Path(battery1, ProductIDProperty)); n != 0 {
		t.Errorf("watch count after removal = %d, want 0", n)
	}

	// Product id changes to a non-BMS model.
	f.tree.SetValue(tree.Path(battery2, ProductIDProperty), value.OfInt(0x0100))
	if f.bms.IsActive() {
		t.Errorf("gate active with reasons %v, want inactive", f.bms.Reasons())
	}
}

func TestDispatcher_ProductIDAsString(t *testing.T) {
	f := newFixture()
	f.dispatcher.Start(f.tree)

	f.tree.Appear(battery1)
	f.tree.SetValue(tree.Path(battery1, ProductIDProperty), value.OfString("0xA3E6"))

	if !f.bms.Has(battery1) {
		t.Error("battery with string product id not recognised")
	}
}

func TestDispatcher_IgnoresOtherObjects(t *testing.T) {
	f := newFixture()
	f.dispatcher.Start(f.tree)

	f.tree.SetState(solar, event.StateSynchronized)
	f.tree.SetValue(tree.Path(solar, ProductIDProperty), value.OfInt(0xA3E5))
	f.tree.Remove(solar)

	if f.generators.IsActive() || f.bms.IsActive() {
		t.Error("unclassified object changed a gate")
	}
	if len(f.dispatcher.Tracked()) != 0 {
		t.Errorf("Tracked() = %v, want empty", f.dispatcher.Tracked())
	}
}

func TestDispatcher_ReplayEquivalence(t *testing.T) {
	populate := func(tr *tree.Tree) {
		tr.SetState(genset, event.StateSynchronized)
		tr.SetState(dcgenset, event.StateSyncing)
		tr.Appear(battery1)
		tr.SetValue(tree.Path(battery1, ProductIDProperty), value.OfInt(0xA3E7))
		tr.Appear(battery2)
		tr.SetValue(tree.Path(battery2, ProductIDProperty), value.OfInt(1))
		tr.Appear(solar)
	}

	live := newFixture()
	live.dispatcher.Start(live.tree)
	populate(live.tree)

	replayed := newFixture()
	populate(replayed.tree)
	replayed.dispatcher.Start(replayed.tree)

	if !reflect.DeepEqual(live.generators.Reasons(), replayed.generators.Reasons()) {
		t.Errorf("generator reasons: live %v, replayed %v", live.generators.Reasons(), replayed.generators.Reasons())
	}
	if !reflect.DeepEqual(live.bms.Reasons(), replayed.bms.Reasons()) {
		t.Errorf("bms reasons: live %v, replayed %v", live.bms.Reasons(), replayed.bms.Reasons())
	}
	if !reflect.DeepEqual(live.dispatcher.Tracked(), replayed.dispatcher.Tracked()) {
		t.Errorf("tracked: live %v, replayed %v", live.dispatcher.Tracked(), replayed.dispatcher.Tracked())
	}
	if !reflect.DeepEqual(replayed.generators.Reasons(), []string{genset}) {
		t.Errorf("generator reasons = %v, want [%s]", replayed.generators.Reasons(), genset)
	}
	if !reflect.DeepEqual(replayed.bms.Reasons(), []string{battery1}) {
		t.Errorf("bms reasons = %v, want [%s]", replayed.bms.Reasons(), battery1)
	}
}

func TestDispatcher_StartTwiceIsNoop(t *testing.T) {
	f := newFixture()
	f.tree.SetState(genset, event.StateSynchronized)

	f.dispatcher.Start(f.tree)
	f.dispatcher.Start(f.tree)

	f.tree.Remove(genset)
	if f.generators.IsActive() {
		t.Error("generator still active after removal")
	}
}
