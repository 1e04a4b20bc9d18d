package pipeline

import (
	"math"
	"time"

	"cityflow/neurotraff/frame"
	"cityflow/neurotraff/models"
)

// Column names of the raw flow record and of the derived features.
const (
	ColID                 = "_id"
	ColRoad               = "road"
	ColPoint              = "point"
	ColTimestamp          = "timestamp"
	ColRoadName           = "roadName"
	ColFRC                = "frc"
	ColCurrentSpeed       = "currentSpeed"
	ColFreeFlowSpeed      = "freeFlowSpeed"
	ColCurrentTravelTime  = "currentTravelTime"
	ColFreeFlowTravelTime = "freeFlowTravelTime"
	ColConfidence         = "confidence"
	ColRoadClosure        = "roadClosure"

	ColDelay        = "Delay"
	ColDelayRatio   = "delay ratio"
	ColTrafficLevel = "Traffic level"
	ColDay          = "Day"
	ColHour         = "Hour"
	ColMinute       = "minute"
	ColLatitude     = "latitude"
	ColLongitude    = "longitude"
)

// LabelColumns carry the target or values derived from it; they are removed
// before the classifier sees the features.
var LabelColumns = []string{ColDelayRatio, ColDelay, ColTrafficLevel}

// FromSamples lays the samples out as a raw record frame, preserving order.
func FromSamples(samples []models.FlowSample) *frame.Frame {
	n := len(samples)
	ids := make([]string, n)
	roads := make([]string, n)
	points := make([]string, n)
	ts := make([]time.Time, n)
	tsValid := make([]bool, n)
	names, namesValid := make([]string, n), make([]bool, n)
	frcs, frcValid := make([]string, n), make([]bool, n)
	curSpeed := make([]float64, n)
	freeSpeed := make([]float64, n)
	curTime := make([]float64, n)
	freeTime := make([]float64, n)
	conf := make([]float64, n)
	closure := make([]float64, n)

	for i, s := range samples {
		ids[i], roads[i], points[i] = s.ID, s.Road, s.Point
		ts[i], tsValid[i] = s.TS, !s.TS.IsZero()
		names[i], namesValid[i] = deref(s.RoadName)
		frcs[i], frcValid[i] = deref(s.FRC)
		curSpeed[i] = num(s.CurrentSpeed)
		freeSpeed[i] = num(s.FreeFlowSpeed)
		curTime[i] = num(s.CurrentTravelTime)
		freeTime[i] = num(s.FreeFlowTravelTime)
		conf[i] = num(s.Confidence)
		closure[i] = math.NaN()
		if s.RoadClosure != nil {
			closure[i] = 0
			if *s.RoadClosure {
				closure[i] = 1
			}
		}
	}

	f, err := frame.New(
		frame.NewString(ColID, ids, nil),
		frame.NewString(ColRoad, roads, nil),
		frame.NewString(ColPoint, points, nil),
		frame.NewTime(ColTimestamp, ts, tsValid),
		frame.NewString(ColRoadName, names, namesValid),
		frame.NewString(ColFRC, frcs, frcValid),
		frame.NewFloat(ColCurrentSpeed, curSpeed),
		frame.NewFloat(ColFreeFlowSpeed, freeSpeed),
		frame.NewFloat(ColCurrentTravelTime, curTime),
		frame.NewFloat(ColFreeFlowTravelTime, freeTime),
		frame.NewFloat(ColConfidence, conf),
		frame.NewNumeric(ColRoadClosure, frame.Bool, closure),
	)
	if err != nil {
		// all columns are built with n rows and distinct names
		panic(err)
	}
	return f
}

// RawSchema is the schema FromSamples produces.
func RawSchema() frame.Schema {
	return FromSamples(nil).Schema()
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func num(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
