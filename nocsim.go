package nocsim

// nocsim.go has code that assembles a mesh experiment from its serialized
// descriptions, and the machinery that applies run-time parameter
// configuration to the objects of a built topology

import (
	"fmt"
	"path"
	"sort"
	"strconv"

	"golang.org/x/exp/slices"
)

// BuildExperimentMesh is called from the module that creates and runs a
// simulation.  The syn map binds pre-defined keys referring to input file
// types ("topo", required; "exp", optional) with file names.  The seed
// fixes the master seed of the topology's random stream.  The returned
// topology has had any experiment parameters applied and any scheduled
// fault bursts recorded, and is ready to Simulate
func BuildExperimentMesh(syn map[string]string, seed uint64, tm *TraceManager) (*Topology, error) {
	ext := path.Ext(syn["topo"])
	useYAML := (ext == ".yaml") || (ext == ".yml")

	var empty []byte = make([]byte, 0)

	tc, err := ReadTopoCfg(syn["topo"], useYAML, empty)
	if err != nil {
		return nil, err
	}

	topo, err := CreateTopology(tc, seed)
	if err != nil {
		return nil, err
	}

	topo.SetTraceManager(tm)

	// the experiment configuration is optional; a missing entry leaves
	// the construction-time values in place
	if len(syn["exp"]) > 0 {
		ext = path.Ext(syn["exp"])
		useYAML = (ext == ".yaml") || (ext == ".yml")

		excg, xerr := ReadExpCfg(syn["exp"], useYAML, empty)
		if xerr != nil {
			return nil, xerr
		}

		ApplyExpCfg(topo, excg)
	}

	return topo, nil
}

// A valueStruct type holds three different types a value might have,
// typically only one of these is used, and which one is known by context
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// stringToValueStruct takes a string (used in the run-time configuration
// phase) and determines whether it is an integer, floating point, boolean,
// or a string
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{intValue: 0, floatValue: 0.0, stringValue: "", boolValue: false}

	// try conversion to int
	ivalue, ierr := strconv.Atoi(v)
	if ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		return vs
	}

	// failing that, try conversion to float
	fvalue, ferr := strconv.ParseFloat(v, 64)
	if ferr == nil {
		vs.floatValue = fvalue
		return vs
	}

	// left with it being a string.  See if true, True
	if v == "true" || v == "True" {
		vs.boolValue = true
		return vs
	}

	vs.stringValue = v
	return vs
}

// The paramObj interface is satisfied by every network object that can be
// configured at run-time with experiment parameters: Router, Link, and the
// Topology itself
type paramObj interface {
	matchParam(attrbName, attrbValue string) bool
	setParam(param string, value valueStruct)
	paramObjName() string
}

// matchParam is used to determine whether the topology attributes match
// those in an experiment parameter, as part of the paramObj interface
func (topo *Topology) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "*":
		return true
	case "name":
		return topo.Name == attrbValue
	}
	return false
}

// setParam assigns the value of the named parameter, as part of the
// paramObj interface
func (topo *Topology) setParam(param string, value valueStruct) {
	switch param {
	case "ambient":
		topo.AmbientTemp = value.floatValue
	case "probesize":
		topo.probeSize = value.floatValue
	case "hoplimit":
		topo.hopLimit = value.intValue
	}
}

// paramObjName is part of the paramObj interface
func (topo *Topology) paramObjName() string {
	return topo.Name
}

// reorderExpParams is used to put the ExpParameter parameters in an order
// such that the earlier elements in the order have broader range of
// attributes than later ones that apply to the same configuration element.
// Wildcard assignments come first and named assignments last, so the most
// specific assignment to an object is the one that sticks
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	// partition the list into three sublists: wildcard (wc), single (sg),
	// and named (nm)
	wc := []ExpParameter{}
	sg := []ExpParameter{}
	nm := []ExpParameter{}

	for _, param := range pL {
		assigned := false

		for _, attrb := range param.Attributes {
			if attrb.AttrbName == "*" {
				wc = append(wc, param)
				assigned = true
				break
			} else if attrb.AttrbName == "name" {
				nm = append(nm, param)
				assigned = true
				break
			}
		}
		if !assigned {
			sg = append(sg, param)
		}
	}

	// the wildcard entries are identical in the Attribute fields, so order
	// them based on the parameter
	sort.Slice(wc, func(i, j int) bool { return wc[i].Param < wc[j].Param })

	// sort the others by (Attribute, Param, Value) key to bring identical
	// elements together for duplicate removal
	byKey := func(list []ExpParameter) func(i, j int) bool {
		return func(i, j int) bool {
			compared := CompareAttrbs(list[i].Attributes, list[j].Attributes)
			if compared == -1 {
				return true
			} else if compared == 1 {
				return false
			}
			if list[i].Param < list[j].Param {
				return true
			}
			if list[i].Param > list[j].Param {
				return false
			}
			return list[i].Value < list[j].Value
		}
	}
	sort.Slice(sg, byKey(sg))
	sort.Slice(nm, byKey(nm))

	// pull them together with wc first, followed by sg, and finally nm
	wc = append(wc, sg...)
	wc = append(wc, nm...)

	// get rid of duplicates
	for idx := len(wc) - 1; idx > 0; idx = idx - 1 {
		if wc[idx].Eq(&wc[idx-1]) {
			wc = append(wc[:idx], wc[(idx+1):]...)
		}
	}

	return wc
}

// ApplyExpCfg walks the experiment configuration over a built topology:
// parameter assignments are grouped by the object class they apply to,
// ordered most-general-first, and applied to every object whose attributes
// match.  Scheduled fault bursts are recorded on the topology for the
// simulation loop to execute
func ApplyExpCfg(topo *Topology, excg *ExpCfg) {
	rtrParams := []ExpParameter{}
	lnkParams := []ExpParameter{}
	topoParams := []ExpParameter{}

	for _, param := range excg.Parameters {
		switch param.ParamObj {
		case "Router":
			rtrParams = append(rtrParams, param)
		case "Link":
			lnkParams = append(lnkParams, param)
		case "Topology":
			topoParams = append(topoParams, param)
		default:
			panic(fmt.Errorf("surprise ParamObj %s", param.ParamObj))
		}
	}

	rtrParams = reorderExpParams(rtrParams)
	lnkParams = reorderExpParams(lnkParams)
	topoParams = reorderExpParams(topoParams)

	// collect the candidate objects for each class
	rtrList := make([]paramObj, 0, len(topo.Routers))
	for _, rtr := range topo.Routers {
		rtrList = append(rtrList, rtr)
	}

	lnkList := make([]paramObj, 0, len(topo.Links))
	for _, lnk := range topo.Links {
		lnkList = append(lnkList, lnk)
	}

	topoList := []paramObj{topo}

	applyParams(rtrList, rtrParams)
	applyParams(lnkList, lnkParams)
	applyParams(topoList, topoParams)

	for _, fb := range excg.FaultBursts {
		if !slices.Contains(topo.faultBursts, fb) {
			topo.faultBursts = append(topo.faultBursts, fb)
		}
	}
}

// applyParams tests every object in the candidate list against every
// parameter assignment, in order, and applies the value on a match.
// Observe that
//   - * denotes a wild card, overriding all other attributes
//   - a set of attributes all of which need to be matched by the object
//     is expressed as a list
func applyParams(testList []paramObj, params []ExpParameter) {
	for _, param := range params {
		for _, testObj := range testList {
			var matched bool = true
			for _, attrb := range param.Attributes {
				if attrb.AttrbName == "*" {
					matched = true
					break
				}

				// if any of the attributes don't match we don't match
				if !testObj.matchParam(attrb.AttrbName, attrb.AttrbValue) {
					matched = false
					break
				}
			}

			if matched {
				// the parameter value might be a string, or float, or bool.
				// stringToValueStruct figures it out
				vs := stringToValueStruct(param.Value)
				testObj.setParam(param.Param, vs)
			}
		}
	}
}
