package domain

// Compare reports structural equality of a and b. With superficial set only
// externally meaningful fields are compared: shortname, name, description,
// author and the kind-specific payload. Otherwise identity and bookkeeping
// fields, owned children and link targets are compared as well.
func Compare(a, b Object, superficial bool) bool {
	if IsNil(a) || IsNil(b) {
		return IsNil(a) && IsNil(b)
	}
	if a.Type() != b.Type() {
		return false
	}
	if !compareBase(a.Meta(), b.Meta(), superficial) || !comparePayload(a, b) {
		return false
	}
	if superficial {
		return true
	}
	ca, cb := Children(a), Children(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if !Compare(ca[i], cb[i], false) {
			return false
		}
	}
	ea, eb := Edges(a), Edges(b)
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		ta, tb := ea[i].Target, eb[i].Target
		if IsNil(ta) != IsNil(tb) {
			return false
		}
		if !IsNil(ta) && !compareBase(ta.Meta(), tb.Meta(), false) {
			return false
		}
	}
	return true
}

func compareBase(a, b *Base, superficial bool) bool {
	if a.Shortname != b.Shortname || a.Name != b.Name || a.Description != b.Description || a.Author != b.Author {
		return false
	}
	if superficial {
		return true
	}
	return a.UID == b.UID &&
		a.Revision == b.Revision &&
		a.Locked == b.Locked &&
		a.Position == b.Position &&
		a.Template == b.Template &&
		a.Broken == b.Broken
}

func comparePayload(a, b Object) bool {
	switch x := a.(type) {
	case *Universe:
		return true
	case *Element:
		y := b.(*Element)
		return x.Module == y.Module && x.BirthDay == y.BirthDay && x.BirthMonth == y.BirthMonth
	case *Action:
		y := b.(*Action)
		return x.Kind == y.Kind && x.Code == y.Code
	case *Attribute:
		return x.Value == b.(*Attribute).Value
	case *Timestep:
		y := b.(*Timestep)
		return x.StartDay == y.StartDay && x.StartMonth == y.StartMonth &&
			x.EndDay == y.EndDay && x.EndMonth == y.EndMonth && x.StepType == y.StepType
	case *EClass:
		return x.Module == b.(*EClass).Module
	case *Spatial:
		return equalPolygons(x.Polygons, b.(*Spatial).Polygons)
	case *Report:
		y := b.(*Report)
		return x.LogFile == y.LogFile && x.Debug == y.Debug && x.HeadlineOnly == y.HeadlineOnly
	case *Trial:
		y := b.(*Trial)
		return x.YearStart == y.YearStart && x.YearEnd == y.YearEnd &&
			x.FishingStart == y.FishingStart && x.FishingEnd == y.FishingEnd && x.DataPath == y.DataPath
	default:
		panic(unknownKind("Compare", a))
	}
}

func equalPolygons(a, b []Polygon) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || len(a[i].Coords) != len(b[i].Coords) {
			return false
		}
		for j := range a[i].Coords {
			if a[i].Coords[j] != b[i].Coords[j] {
				return false
			}
		}
	}
	return true
}
