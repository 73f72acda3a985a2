package domain_test

import (
	"context"
	"errors"
	"testing"

	"epoccore/internal/infra/persistence/memory"
	"epoccore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	doc   *domain.Document
	fish  *domain.Element
	grow  *domain.Action
	mass  *domain.Attribute
	class *domain.EClass
}

// newScene builds a document whose single element links a registered
// element class template.
func newScene() scene {
	doc := domain.NewDocument(domain.NewUniverse("baltic"), domain.DefaultEngineConfig())
	s := scene{
		doc:   doc,
		fish:  domain.NewElement(domain.ModuleBiota, "cod"),
		grow:  domain.NewAction(domain.ActionSetup, "grow"),
		mass:  domain.NewAttribute("mass", "4.2"),
		class: domain.NewEClass(domain.ModuleBiota, "fish"),
	}
	doc.Root.AddElement(s.fish)
	s.fish.AddAction(s.grow)
	s.fish.AddAttribute(s.mass)
	s.grow.Dataset.Set(s.mass)
	doc.Template(s.class)
	s.fish.EClass.Set(s.class)
	return s
}

func TestDocumentSaveAndLoadSharesTemplates(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := newScene()

	res, err := s.doc.Save(ctx, st)
	require.NoError(t, err)
	assert.False(t, res.HasBlocking())
	require.Positive(t, s.class.UID)
	assert.Equal(t, []memory.TemplateRef{{Type: domain.ObjEClass, UID: s.class.UID}}, st.TemplateLinks(s.fish.UID))

	loaded, err := domain.Load(ctx, st, s.doc.Root.UID, domain.DefaultEngineConfig())
	require.NoError(t, err)
	assert.True(t, domain.Compare(s.doc.Root, loaded.Root, false))
	require.Equal(t, 1, loaded.Templates.Len())
	tmpl := domain.TemplatesOf[*domain.EClass](loaded.Templates)[0]
	fish := loaded.Root.ElementsOf(domain.ModuleBiota)[0]
	assert.Same(t, tmpl, fish.EClass.Target())
	assert.Equal(t, domain.LinkTemplate, fish.EClass.Kind())
	assert.Same(t, fish.Attributes[0], fish.Actions[0].Dataset.Target())
}

func TestDocumentSaveBlockedByRules(t *testing.T) {
	st := memory.NewStore()
	s := newScene()
	s.fish.Shortname = "bad name"

	res, err := s.doc.Save(context.Background(), st)

	var rve domain.RuleViolationError
	require.True(t, errors.As(err, &rve))
	assert.True(t, res.HasBlocking())
	uids, _ := st.UIDs(context.Background(), domain.ObjUniverse)
	assert.Empty(t, uids)
	assert.Equal(t, domain.UIDNew, s.doc.Root.UID)
}

func TestDocumentSaveFlushesRemovedChildren(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := newScene()
	spare := domain.NewAction(domain.ActionSupport, "spare")
	ts := domain.NewTimestep("t", domain.StepAfter)
	spare.AddTimestep(ts)
	s.fish.AddAction(spare)
	_, err := s.doc.Save(ctx, st)
	require.NoError(t, err)

	s.fish.RemoveAction(spare)
	assert.Equal(t, []domain.Object{spare}, domain.Removed(s.fish))
	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)

	_, ok := st.Record(domain.ObjAction, spare.UID)
	assert.False(t, ok)
	_, ok = st.Record(domain.ObjTimestep, ts.UID)
	assert.False(t, ok)
	assert.Empty(t, domain.Removed(s.fish))
	_, ok = st.Record(domain.ObjAction, s.grow.UID)
	assert.True(t, ok)
}

func TestDocumentQueuedDeletionIgnoresMissingRecords(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := newScene()
	_, err := s.doc.Save(ctx, st)
	require.NoError(t, err)

	ghost := domain.NewAttribute("ghost", "")
	ghost.UID = 999
	assert.True(t, s.doc.Queue(ghost))
	_, err = s.doc.Save(ctx, st)
	assert.NoError(t, err)
}

func TestDocumentReplaceTemplateDeletesOrphan(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := newScene()
	_, err := s.doc.Save(ctx, st)
	require.NoError(t, err)
	oldUID := s.class.UID

	s.class.Revision = "5"
	revised := domain.NewEClass(domain.ModuleBiota, "fish")
	revised.Description = "ray-finned"
	require.NoError(t, s.doc.ReplaceModified(s.class, revised))
	assert.Same(t, revised, s.fish.EClass.Target())
	assert.False(t, s.class.Template)
	assert.True(t, s.doc.Templates.Contains(revised))
	assert.Equal(t, "6", revised.Revision, "revised template is newer than the one it replaces")

	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)

	_, ok := st.Record(domain.ObjEClass, oldUID)
	assert.False(t, ok, "unreferenced former template is deleted")
	uids, err := st.TemplateUIDs(ctx, domain.ObjEClass)
	require.NoError(t, err)
	assert.Equal(t, []int{revised.UID}, uids)
	assert.Equal(t, []memory.TemplateRef{{Type: domain.ObjEClass, UID: revised.UID}}, st.TemplateLinks(s.fish.UID))
}

func TestDocumentUnlinkKeepsTemplatesStillInUse(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := newScene()
	_, err := s.doc.Save(ctx, st)
	require.NoError(t, err)
	// another universe in the same store links the class as well
	require.NoError(t, st.LinkTemplate(ctx, 4242, s.class))

	s.fish.EClass.Clear()
	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, st.TemplateLinks(s.fish.UID))
	_, ok := st.Record(domain.ObjEClass, s.class.UID)
	assert.True(t, ok, "registered templates survive losing their last referrer")

	s.fish.EClass.Set(s.class)
	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)
	s.doc.Templates.Remove(s.class)
	s.fish.EClass.Clear()
	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)
	_, ok = st.Record(domain.ObjEClass, s.class.UID)
	assert.True(t, ok, "unregistered template linked from elsewhere is kept")

	require.NoError(t, st.UnlinkTemplate(ctx, 4242, s.class.UID, domain.ObjEClass))
	s.doc.Template(s.class)
	s.fish.EClass.Set(s.class)
	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)
	s.doc.Templates.Remove(s.class)
	s.fish.EClass.Clear()
	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)
	_, ok = st.Record(domain.ObjEClass, s.class.UID)
	assert.False(t, ok, "orphaned former template is deleted")
}

func TestDocumentReplaceModifiedQueuesLocalObject(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := newScene()
	_, err := s.doc.Save(ctx, st)
	require.NoError(t, err)
	oldUID := s.mass.UID

	revised := domain.NewAttribute("mass", "5.0")
	require.NoError(t, s.doc.ReplaceModified(s.mass, revised))
	assert.Same(t, revised, s.grow.Dataset.Target())
	assert.Equal(t, []*domain.Attribute{revised}, s.fish.Attributes)
	assert.Equal(t, "2", revised.Revision)
	assert.Error(t, s.doc.ReplaceModified(s.grow, revised))

	newer := domain.NewAttribute("mass", "5.5")
	newer.Revision = "9"
	require.NoError(t, s.doc.ReplaceModified(revised, newer))
	assert.Equal(t, "9", newer.Revision, "an already newer revision is kept")

	_, err = s.doc.Save(ctx, st)
	require.NoError(t, err)
	_, ok := st.Record(domain.ObjAttribute, oldUID)
	assert.False(t, ok)
	_, ok = st.Record(domain.ObjAttribute, newer.UID)
	assert.True(t, ok)
	assert.Same(t, newer, s.grow.Dataset.Target())
}

func TestDocumentImportAdoptsTemplatesAndRepairs(t *testing.T) {
	s := newScene()
	foreign := domain.NewRegistry()
	classCopy := domain.NewEClass(domain.ModuleBiota, "fish")
	newClass := domain.NewEClass(domain.ModuleEnvironment, "water")
	foreign.Add(classCopy)
	foreign.Add(newClass)

	herring := domain.NewElement(domain.ModuleBiota, "herring")
	weight := domain.NewAttribute("weight", "0.2")
	feed := domain.NewAction(domain.ActionSetup, "feed")
	herring.AddAttribute(weight)
	herring.AddAction(feed)
	feed.Dataset.Set(domain.BrokenAs(domain.NewAttribute("weight", "0.2")))
	feed.AddRelated(s.fish)
	feed.Related[0].Set(domain.BrokenAs(s.fish))
	herring.EClass.Set(classCopy)

	repaired, err := s.doc.Import(herring, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, repaired)
	assert.Same(t, s.class, herring.EClass.Target())
	assert.Same(t, weight, feed.Dataset.Target())
	assert.Same(t, s.fish, feed.Related[0].Target())
	assert.Contains(t, s.doc.Root.ElementsOf(domain.ModuleBiota), herring)

	sprat := domain.NewElement(domain.ModuleBiota, "sprat")
	sprat.EClass.Set(newClass)
	_, err = s.doc.Import(sprat, nil)
	require.NoError(t, err)
	assert.True(t, s.doc.Templates.Contains(newClass))
	assert.Equal(t, 2, s.doc.Templates.Len())
}

func TestDocumentExtractBreaksOutgoingLinks(t *testing.T) {
	s := newScene()
	herring := domain.NewElement(domain.ModuleBiota, "herring")
	feed := domain.NewAction(domain.ActionSetup, "feed")
	feed.Dataset.Set(s.mass)
	herring.AddAction(feed)
	s.doc.Root.AddElement(herring)

	out := s.doc.Extract(herring).(*domain.Element)

	assert.NotSame(t, herring, out)
	assert.True(t, out.Actions[0].Dataset.IsBroken())
	assert.Equal(t, "mass", out.Actions[0].Dataset.Target().Shortname)
	assert.Same(t, s.mass, feed.Dataset.Target(), "source document untouched")
}

func TestLoaderRejectsInvalidUIDs(t *testing.T) {
	loader := domain.NewLoader(memory.NewStore(), nil)

	_, err := loader.Resolve(context.Background(), domain.ObjElement, 0)
	assert.Error(t, err)
	_, err = loader.Resolve(context.Background(), domain.ObjElement, 7)
	assert.True(t, domain.IsNotFound(err))
	assert.Error(t, loader.LoadTemplates(context.Background()))
}

func TestDocumentUnsetAsTemplateBreaksDanglingLinks(t *testing.T) {
	s := newScene()

	ok, broken := s.doc.UnsetAsTemplate(s.class, 0, true)

	require.True(t, ok)
	assert.Equal(t, 1, broken)
	require.Equal(t, domain.LinkBroken, s.fish.EClass.Kind())
	assert.NotSame(t, s.class, s.fish.EClass.Target())
	assert.True(t, domain.Compare(s.class, s.fish.EClass.Target(), true))
	assert.True(t, domain.HasBrokenLink(s.doc.Root))
	assert.False(t, domain.IsLinked(s.doc.Root, s.class))

	ok, broken = s.doc.UnsetAsTemplate(s.class, 0, true)
	assert.False(t, ok)
	assert.Zero(t, broken)
}

func TestDocumentUnsetAsTemplateBreaksLinksFromTemplates(t *testing.T) {
	s := newScene()
	rate := domain.NewAttribute("rate", "1")
	feed := domain.NewAction(domain.ActionSetup, "feed")
	s.doc.Template(rate)
	feed.Dataset.Set(rate)
	s.doc.Template(feed)
	require.Equal(t, domain.LinkTemplate, feed.Dataset.Kind())

	ok, broken := s.doc.UnsetAsTemplate(rate, 0, false)

	require.True(t, ok)
	assert.Equal(t, 1, broken)
	assert.Equal(t, domain.LinkBroken, feed.Dataset.Kind())
}

func TestDocumentUnsetAsTemplateKeepsLinksToOwnedObjects(t *testing.T) {
	s := newScene()
	s.doc.Template(s.mass)
	require.Equal(t, domain.LinkTemplate, s.grow.Dataset.Kind())

	ok, broken := s.doc.UnsetAsTemplate(s.mass, s.fish.UID, false)

	require.True(t, ok)
	assert.Zero(t, broken)
	assert.Same(t, s.mass, s.grow.Dataset.Target())
	assert.Equal(t, domain.LinkLocal, s.grow.Dataset.Kind())
}
