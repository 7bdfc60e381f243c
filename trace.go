package nocsim

// trace.go gathers optional records of a simulation run: per-cycle metric
// samples, per-packet route outcomes, and fault latches, with a dictionary
// mapping object ids to names.  The gathered trace serializes to yaml or
// json for post-run analysis; nothing here writes unless asked to

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

type TraceRecordType int

const (
	CycleType TraceRecordType = iota
	RouteType
	FaultType
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{
	CycleType: "cycle", RouteType: "route", FaultType: "fault"}

type TraceInst struct {
	TraceTime string
	TraceType string
	TraceStr  string
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string
	Type string
}

// TraceManager gathers information about a simulation model and an
// execution of that model
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by originating object
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace creates a record of the trace using its calling arguments, and stores it
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	// return if we aren't using the trace manager
	if !tm.InUse {
		return
	}

	_, present := tm.Traces[objID]
	if !present {
		tm.Traces[objID] = make([]TraceInst, 0)
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
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
	return true
}

// A CycleTrace saves the aggregate measurements of one simulation cycle,
// saved for post-run analysis
type CycleTrace struct {
	Time       float64 // time in float64
	Ticks      int64   // ticks variable of time
	Cycle      int     // clock cycle the sample describes
	Latency    float64 // mean head-packet waiting time this cycle
	Throughput float64 // cumulative packets sent per cycle
	Power      float64 // total instantaneous power over the mesh
	Dropped    int     // cumulative dropped packets
}

func (ctr *CycleTrace) TraceType() TraceRecordType {
	return CycleType
}

func (ctr *CycleTrace) Serialize() string {
	var bytes []byte
	var merr error

	bytes, merr = yaml.Marshal(*ctr)

	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddCycleTrace creates a record of a cycle's aggregates and stores it
func AddCycleTrace(tm *TraceManager, vrt vrtime.Time, cycle int,
	latency, throughput, power float64, dropped int) {

	ctr := new(CycleTrace)
	ctr.Time = vrt.Seconds()
	ctr.Ticks = vrt.Ticks()
	ctr.Cycle = cycle
	ctr.Latency = latency
	ctr.Throughput = throughput
	ctr.Power = power
	ctr.Dropped = dropped

	trcInst := TraceInst{
		TraceTime: strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		TraceType: trtToStr[ctr.TraceType()],
		TraceStr:  ctr.Serialize(),
	}
	tm.AddTrace(vrt, cycle, trcInst)
}

// A RouteTrace saves the outcome of one injected packet: where it was bound,
// and whether it was delivered, dropped at a full buffer, or unroutable
type RouteTrace struct {
	Time     float64
	Ticks    int64
	SrcID    int
	DstID    int
	Size     int
	HopCount int
	// id of the router where the packet's traversal ended, -1 when no
	// route existed at all
	EndID int
	// "delivered", "buffer-full", or "no-route"
	Outcome string
}

func (rtr *RouteTrace) TraceType() TraceRecordType {
	return RouteType
}

func (rtr *RouteTrace) Serialize() string {
	var bytes []byte
	var merr error

	bytes, merr = yaml.Marshal(*rtr)

	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddRouteTrace creates a record of a packet's route outcome and stores it
func AddRouteTrace(tm *TraceManager, vrt vrtime.Time, pckt *Packet, endID int, outcome string) {
	rt := new(RouteTrace)
	rt.Time = vrt.Seconds()
	rt.Ticks = vrt.Ticks()
	rt.SrcID = pckt.SrcID
	rt.DstID = pckt.DstID
	rt.Size = pckt.Size
	rt.HopCount = pckt.HopCount
	rt.EndID = endID
	rt.Outcome = outcome

	trcInst := TraceInst{
		TraceTime: strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		TraceType: trtToStr[rt.TraceType()],
		TraceStr:  rt.Serialize(),
	}
	tm.AddTrace(vrt, pckt.SrcID, trcInst)
}

// A FaultTrace saves a failure latch: which object failed and why
type FaultTrace struct {
	Time  float64
	Ticks int64
	ObjID int
	// "router" or "link"
	ObjType string
	// "thermal", "backpressure", or "injected"
	Cause string
}

func (ftr *FaultTrace) TraceType() TraceRecordType {
	return FaultType
}

func (ftr *FaultTrace) Serialize() string {
	var bytes []byte
	var merr error

	bytes, merr = yaml.Marshal(*ftr)

	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddFaultTrace creates a record of a failure latch and stores it
func AddFaultTrace(tm *TraceManager, vrt vrtime.Time, objID int, objType, cause string) {
	ftr := new(FaultTrace)
	ftr.Time = vrt.Seconds()
	ftr.Ticks = vrt.Ticks()
	ftr.ObjID = objID
	ftr.ObjType = objType
	ftr.Cause = cause

	trcInst := TraceInst{
		TraceTime: strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		TraceType: trtToStr[ftr.TraceType()],
		TraceStr:  ftr.Serialize(),
	}
	tm.AddTrace(vrt, objID, trcInst)
}
