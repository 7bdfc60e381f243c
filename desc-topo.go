package nocsim

// desc-topo.go holds the serializable descriptions of a wafer mesh and of
// an experiment run over it.  To most easily serialize and deserialize the
// structs involved in describing a simulation model, we ensure that they are
// completely described without pointers.  Run-time structures are built from
// these descriptions in topo.go and nocsim.go

import (
	"encoding/json"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path"
	"strings"
)

// ErrInvalidTopologyParameters is returned (wrapped, with detail) when a
// TopoCfg carries a non-positive dimension or an out-of-range fault probability
var ErrInvalidTopologyParameters = errors.New("invalid topology parameters")

// A TopoCfg struct describes the dimensions and construction parameters of a
// 3D mesh.  Routers fill a Rows x Cols x Layers grid, with a router's integer
// id and its (x,y,z) coordinate in bijection
type TopoCfg struct {
	// Name is an identifier for this topology description
	Name string `json:"name" yaml:"name"`

	// extent of the mesh in the x dimension
	Rows int `json:"rows" yaml:"rows"`

	// extent of the mesh in the y dimension
	Cols int `json:"cols" yaml:"cols"`

	// extent of the mesh in the z dimension
	Layers int `json:"layers" yaml:"layers"`

	// advisory per-hop latencies, carried on the created links and routers
	LinkLatency   int `json:"linklatency" yaml:"linklatency"`
	RouterLatency int `json:"routerlatency" yaml:"routerlatency"`

	// probability that an intended mesh edge is omitted at construction,
	// scaled by the distance factor of the edge
	FaultProb float64 `json:"faultprob" yaml:"faultprob"`
}

// CreateTopoCfg is an initialization constructor
func CreateTopoCfg(name string, rows, cols, layers, linkLatency, routerLatency int,
	faultProb float64) *TopoCfg {

	tc := new(TopoCfg)
	tc.Name = name
	tc.Rows = rows
	tc.Cols = cols
	tc.Layers = layers
	tc.LinkLatency = linkLatency
	tc.RouterLatency = routerLatency
	tc.FaultProb = faultProb

	return tc
}

// validate checks the preconditions on mesh construction, aggregating every
// violation into one error so the caller sees them all at once
func (tc *TopoCfg) validate() error {
	errList := []error{}

	if tc.Rows < 1 || tc.Cols < 1 || tc.Layers < 1 {
		errList = append(errList,
			fmt.Errorf("%w: dimensions (%d,%d,%d) must all be positive",
				ErrInvalidTopologyParameters, tc.Rows, tc.Cols, tc.Layers))
	}

	if tc.FaultProb < 0.0 || tc.FaultProb > 1.0 {
		errList = append(errList,
			fmt.Errorf("%w: fault probability %f outside [0,1]",
				ErrInvalidTopologyParameters, tc.FaultProb))
	}

	return ReportErrs(errList)
}

// WriteToFile stores the TopoCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tc *TopoCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tc)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tc, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// ReadTopoCfg deserializes a byte slice holding a representation of a TopoCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given
// is read to acquire them.  A deserialized representation is returned, or an error
// if one is generated from a file read or the deserialization
func ReadTopoCfg(filename string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoCfg{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// An AttrbStruct holds the name of an attribute and a value for it
type AttrbStruct struct {
	AttrbName  string `json:"attrbname" yaml:"attrbname"`
	AttrbValue string `json:"attrbvalue" yaml:"attrbvalue"`
}

// CompareAttrbs establishes an ordering between two attribute lists, used
// when sorting parameter assignments into application order
func CompareAttrbs(attrbs1, attrbs2 []AttrbStruct) int {
	if len(attrbs1) < len(attrbs2) {
		return -1
	}
	if len(attrbs1) > len(attrbs2) {
		return 1
	}

	for idx, attrb1 := range attrbs1 {
		attrb2 := attrbs2[idx]
		if attrb1.AttrbName < attrb2.AttrbName {
			return -1
		}
		if attrb1.AttrbName > attrb2.AttrbName {
			return 1
		}
		if attrb1.AttrbValue < attrb2.AttrbValue {
			return -1
		}
		if attrb1.AttrbValue > attrb2.AttrbValue {
			return 1
		}
	}

	return 0
}

// An ExpParameter struct describes an input to experiment configuration at run-time.
// It specifies
//   - the class of object the parameter applies to ("Router", "Link", "Topology"),
//   - a list of attributes an object must match to receive the value.  An attribute
//     name of "*" is a wildcard matching every object of the class; "row", "col",
//     and "layer" select routers by mesh position; "name" selects one object
//   - the parameter whose value is set, and the value, expressed as a string
type ExpParameter struct {
	// class of object the parameter configures
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attributes an object must match to receive the value
	Attributes []AttrbStruct `json:"attributes" yaml:"attributes"`

	// parameter being set, e.g. "buffer", "bandwidth", "ambient"
	Param string `json:"param" yaml:"param"`

	// string encoding of the value given to the parameter
	Value string `json:"value" yaml:"value"`
}

// CreateExpParameter is a constructor.  Completely fills in the struct from the arguments given
func CreateExpParameter(paramObj string, attributes []AttrbStruct, param, value string) *ExpParameter {
	exptr := &ExpParameter{ParamObj: paramObj, Attributes: attributes, Param: param, Value: value}

	return exptr
}

// Eq returns a simple comparison between two ExpParameter structs
func (epp *ExpParameter) Eq(ep2 *ExpParameter) bool {
	if epp.ParamObj != ep2.ParamObj {
		return false
	}

	if CompareAttrbs(epp.Attributes, ep2.Attributes) != 0 {
		return false
	}

	if epp.Param != ep2.Param {
		return false
	}

	if epp.Value != ep2.Value {
		return false
	}

	return true
}

// A FaultBurst describes a scheduled mid-run fault injection: at the end of
// the named cycle every router and link independently fails with the given
// probability.  Failures latch; they are never reversed
type FaultBurst struct {
	Cycle     int     `json:"cycle" yaml:"cycle"`
	FaultProb float64 `json:"faultprob" yaml:"faultprob"`
}

// An ExpCfg struct holds all of the run-time configuration of an experiment:
// parameter assignments applied to the topology after construction, and
// fault bursts scheduled during the simulation
type ExpCfg struct {
	// Name is an identifier for a group of parameterizations
	Name string `json:"expname" yaml:"expname"`

	// Parameters is a list of parameter assignments
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`

	// FaultBursts lists the dynamic fault injections scheduled for the run
	FaultBursts []FaultBurst `json:"faultbursts" yaml:"faultbursts"`
}

// CreateExpCfg is an initialization constructor.
// Its output struct has methods for integrating data.
func CreateExpCfg(name string) *ExpCfg {
	expcfg := &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0),
		FaultBursts: make([]FaultBurst, 0)}

	return expcfg
}

// validObjTypes names the classes of object an ExpParameter may configure
var validObjTypes []string = []string{"Router", "Link", "Topology"}

// AddParameter accepts the description of a parameter assignment, creates an
// ExpParameter from it, and adds it to the ExpCfg's list of parameters
func (excg *ExpCfg) AddParameter(paramObj string, attributes []AttrbStruct,
	param, value string) error {

	validObj := false
	for _, objType := range validObjTypes {
		if paramObj == objType {
			validObj = true

			break
		}
	}
	if !validObj {
		return fmt.Errorf("parameter object class %s not recognized", paramObj)
	}

	// create and add the ExpParameter to the list the ExpCfg holds
	excg.Parameters = append(excg.Parameters,
		*CreateExpParameter(paramObj, attributes, param, value))

	return nil
}

// AddFaultBurst schedules a dynamic fault injection for the named cycle
func (excg *ExpCfg) AddFaultBurst(cycle int, faultProb float64) error {
	if cycle < 1 {
		return fmt.Errorf("fault burst cycle %d must be positive", cycle)
	}
	if faultProb < 0.0 || faultProb > 1.0 {
		return fmt.Errorf("fault burst probability %f outside [0,1]", faultProb)
	}

	excg.FaultBursts = append(excg.FaultBursts, FaultBurst{Cycle: cycle, FaultProb: faultProb})

	return nil
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (excg *ExpCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*excg)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*excg, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// ReadExpCfg deserializes a byte slice holding a representation of an ExpCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given
// is read to acquire them.  A deserialized representation is returned, or an error
// if one is generated from a file read or the deserialization
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	var base error
	for _, err := range errs {
		if err != nil {
			if base == nil {
				base = err
			}
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	if len(errMsg) == 1 {
		return base
	}

	// keep the first error in the chain so sentinel tests with errors.Is
	// still see it through the aggregation
	return fmt.Errorf("%w; %s", base, strings.Join(errMsg[1:], ","))
}
