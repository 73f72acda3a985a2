package memory

import (
	"context"
	"epoccore/pkg/domain"
	"errors"
	"testing"
	"time"
)

func sampleUniverse() (*domain.Universe, *domain.Element, *domain.Action, *domain.Attribute) {
	u := domain.NewUniverse("baltic")
	e := domain.NewElement(domain.ModuleBiota, "cod")
	attr := domain.NewAttribute("growth", "0.35")
	act := domain.NewAction(domain.ActionTimestep, "grow")
	ts := domain.NewTimestep("daily", domain.StepDuring)
	act.Dataset.Set(attr)
	ts.Dataset.Set(attr)
	act.AddTimestep(ts)
	e.AddAction(act)
	e.AddAttribute(attr)
	u.AddElement(e)
	return u, e, act, attr
}

func TestStoreSaveAssignsUIDsAndLoads(t *testing.T) {
	store := NewStore()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()
	u, e, act, attr := sampleUniverse()

	if err := store.Save(ctx, u, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, o := range []domain.Object{u, e, act, attr, act.Timesteps[0]} {
		if o.Meta().UID <= 0 {
			t.Fatalf("expected uid for %s, got %d", o.Type(), o.Meta().UID)
		}
		if !o.Meta().Created.Equal(fixed) {
			t.Fatalf("expected created stamp on %s", o.Type())
		}
	}
	if e.ParentUID != u.UID || act.ParentUID != e.UID {
		t.Fatalf("expected parent uids to follow ownership")
	}

	loaded := domain.NewBlank(domain.ObjUniverse, u.UID)
	if err := store.Load(ctx, loaded, domain.NewLoader(store, nil)); err != nil {
		t.Fatalf("load: %v", err)
	}
	lu := loaded.(*domain.Universe)
	if !domain.Compare(lu, u, false) {
		t.Fatalf("loaded universe differs from saved one")
	}
	le := lu.ElementsOf(domain.ModuleBiota)[0]
	la := le.Actions[0]
	if la.Dataset.Target() != le.Attributes[0] || la.Timesteps[0].Dataset.Target() != le.Attributes[0] {
		t.Fatalf("expected links to resolve to the single loaded attribute")
	}
	if le.Attributes[0].ParentUID != le.UID {
		t.Fatalf("expected attribute reached through a link first to keep its owner, got %d", le.Attributes[0].ParentUID)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore()
	err := store.Load(context.Background(), domain.NewBlank(domain.ObjElement, 99), domain.NewLoader(store, nil))
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.UID != 99 || nf.Type != domain.ObjElement {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStoreSavesUnsavedLinkTargets(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	act := domain.NewAction(domain.ActionSetup, "catch")
	external := domain.NewAttribute("quota", "10")
	act.Dataset.Set(external)

	if err := store.Save(ctx, act, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if external.UID <= 0 {
		t.Fatalf("expected link target saved alongside")
	}
	rec, ok := store.Record(domain.ObjAction, act.UID)
	if !ok {
		t.Fatalf("expected action record")
	}
	refs := rec.Links[domain.LinkDataset]
	if len(refs) != 1 || refs[0].UID != external.UID {
		t.Fatalf("unexpected dataset refs %+v", refs)
	}
}

func TestStoreKeepsBrokenLinksAsStubs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	act := domain.NewAction(domain.ActionSetup, "catch")
	act.Dataset.Set(domain.BrokenAs(domain.NewAttribute("quota", "10")))

	if err := store.Save(ctx, act, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded := domain.NewBlank(domain.ObjAction, act.UID).(*domain.Action)
	if err := store.Load(ctx, loaded, domain.NewLoader(store, nil)); err != nil {
		t.Fatalf("load: %v", err)
	}
	ds := loaded.Dataset.Target()
	if !loaded.Dataset.IsBroken() || ds.Shortname != "quota" || ds.UID != domain.UIDBroken {
		t.Fatalf("expected broken stub to survive reload, got %+v", ds)
	}
}

func TestStoreRejectsBrokenRootAndRollsBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	e := domain.NewElement(domain.ModuleBiota, "cod")
	e.AddAction(domain.NewAction(domain.ActionSetup, "init"))
	e.EClass.Set(domain.NewEClass(domain.ModuleBiota, "fish"))
	ph := domain.BrokenAs(domain.NewAttribute("x", "1"))
	e.Attributes = append(e.Attributes, ph)

	if err := store.Save(ctx, e, true); err == nil {
		t.Fatalf("expected broken child to fail the save")
	}
	if e.UID != domain.UIDNew || e.Actions[0].UID != domain.UIDNew || e.EClass.Target().UID != domain.UIDNew {
		t.Fatalf("expected uids rolled back after failure")
	}
	if uids, _ := store.UIDs(ctx, domain.ObjElement); len(uids) != 0 {
		t.Fatalf("expected nothing persisted, got %v", uids)
	}
}

func TestStoreDeleteSparesTemplateChildren(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	reg := domain.NewRegistry()
	u, e, act, attr := sampleUniverse()
	reg.Add(attr)
	if err := store.Save(ctx, u, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.LinkTemplate(ctx, e.UID, attr); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := store.Delete(ctx, e, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.Record(domain.ObjAction, act.UID); ok {
		t.Fatalf("expected owned action deleted")
	}
	if _, ok := store.Record(domain.ObjAttribute, attr.UID); !ok {
		t.Fatalf("expected template attribute kept")
	}
	if links := store.TemplateLinks(e.UID); len(links) != 0 {
		t.Fatalf("expected links of deleted parent dropped, got %v", links)
	}
	if err := store.Delete(ctx, e, true); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestStoreTemplateLinks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	reg := domain.NewRegistry()
	class := domain.NewEClass(domain.ModuleBiota, "fish")
	reg.Add(class)
	if err := store.Save(ctx, class, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.LinkTemplate(ctx, 0, class); err == nil {
		t.Fatalf("expected unsaved parent rejected")
	}
	for _, parent := range []int{10, 11} {
		if err := store.LinkTemplate(ctx, parent, class); err != nil {
			t.Fatalf("link: %v", err)
		}
	}

	used, err := store.TemplateUsedByOther(ctx, 10, class.UID, domain.ObjEClass)
	if err != nil || !used {
		t.Fatalf("expected template used by parent 11: %v %v", used, err)
	}
	if err := store.UnlinkTemplate(ctx, 11, class.UID, domain.ObjEClass); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	used, _ = store.TemplateUsedByOther(ctx, 10, class.UID, domain.ObjEClass)
	if used {
		t.Fatalf("expected template no longer used by others")
	}
	uids, err := store.TemplateUIDs(ctx, domain.ObjEClass)
	if err != nil || len(uids) != 1 || uids[0] != class.UID {
		t.Fatalf("unexpected template uids %v (%v)", uids, err)
	}
}

func TestStoreSnapshotRoundTripAndMigration(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	u, _, _, _ := sampleUniverse()
	if err := store.Save(ctx, u, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	snapshot := store.ExportState()

	store.ImportState(Snapshot{})
	if uids, _ := store.UIDs(ctx, domain.ObjUniverse); len(uids) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if uids, _ := store.UIDs(ctx, domain.ObjUniverse); len(uids) != 1 || uids[0] != u.UID {
		t.Fatalf("expected restored state, got %v", uids)
	}

	snapshot.NextUID = 0
	snapshot.TemplateLinks = map[int][]TemplateRef{
		-1:    {{Type: domain.ObjAttribute, UID: 1}},
		u.UID: {{Type: domain.ObjEClass, UID: 999}},
	}
	migrated := migrateSnapshot(snapshot)
	if len(migrated.TemplateLinks) != 0 {
		t.Fatalf("expected dangling template links dropped, got %v", migrated.TemplateLinks)
	}
	if migrated.NextUID <= u.UID {
		t.Fatalf("expected uid sequence moved past stored uids, got %d", migrated.NextUID)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Save(ctx, domain.NewAttribute("a", "1"), true); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
