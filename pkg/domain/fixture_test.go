package domain

type fixture struct {
	uni    *Universe
	fish   *Element
	fleet  *Element
	growth *Attribute
	grow   *Action
	daily  *Timestep
	quota  *Attribute
	catch  *Action
}

// newFixture builds a universe with two elements. fish owns a timestep
// action whose dataset and timestep both link to fish's own attribute;
// fleet owns an action whose dataset links across to fish's attribute and
// which relates to fish.
func newFixture() fixture {
	f := fixture{
		uni:    NewUniverse("baltic"),
		fish:   NewElement(ModuleBiota, "cod"),
		fleet:  NewElement(ModuleActivity, "trawlers"),
		growth: NewAttribute("growth", "0.35"),
		grow:   NewAction(ActionTimestep, "grow"),
		daily:  NewTimestep("daily", StepDuring),
		quota:  NewAttribute("quota", "1200"),
		catch:  NewAction(ActionSetup, "catch"),
	}
	f.uni.AddElement(f.fish)
	f.uni.AddElement(f.fleet)
	f.fish.AddAttribute(f.growth)
	f.grow.Dataset.Set(f.growth)
	f.daily.Dataset.Set(f.growth)
	f.grow.AddTimestep(f.daily)
	f.fish.AddAction(f.grow)
	f.fleet.AddAttribute(f.quota)
	f.catch.Dataset.Set(f.growth)
	f.catch.AddRelated(f.fish)
	f.fleet.AddAction(f.catch)
	return f
}

func (f fixture) cx(reg *Registry) CloneContext {
	return CloneContext{Root: f.uni, Registry: reg}
}
