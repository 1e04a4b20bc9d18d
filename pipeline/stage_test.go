package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityflow/neurotraff/frame"
)

func mustFrame(t *testing.T, cols ...*frame.Column) *frame.Frame {
	t.Helper()
	f, err := frame.New(cols...)
	require.NoError(t, err)
	return f
}

func TestColumnProjectorIsIdempotent(t *testing.T) {
	in := mustFrame(t,
		frame.NewString(ColID, []string{"a"}, nil),
		frame.NewString(ColRoad, []string{"LBS Marg"}, nil),
		frame.NewString(ColRoadName, []string{"x"}, nil),
	)
	s := NewColumnProjector(StageRemoveColumns, ColID, ColRoadName, ColRoadClosure)

	once, err := s.Apply(in)
	require.NoError(t, err)
	twice, err := s.Apply(once)
	require.NoError(t, err)

	assert.Equal(t, []string{ColRoad}, once.Schema().Names())
	assert.Equal(t, once.Schema(), twice.Schema())
	assert.Len(t, in.Schema(), 3)
}

func TestDelayCalculator(t *testing.T) {
	in := mustFrame(t,
		frame.NewFloat(ColCurrentTravelTime, []float64{150, 80, 60, 10, math.NaN()}),
		frame.NewFloat(ColFreeFlowTravelTime, []float64{100, 100, 0, -5, 100}),
	)
	out, err := NewDelayCalculator(StageDelay, ColCurrentTravelTime, ColFreeFlowTravelTime).Apply(in)
	require.NoError(t, err)

	delay, _ := out.Column(ColDelay)
	ratio, _ := out.Column(ColDelayRatio)

	tests := []struct {
		delay     float64
		ratio     float64
		ratioSeen bool
	}{
		{50, 0.5, true},
		{-20, -0.2, true},
		{60, 0, false},
		{15, 0, false},
		{math.NaN(), 0, false},
	}
	for i, tt := range tests {
		d, _ := delay.Float(i)
		if math.IsNaN(tt.delay) {
			assert.True(t, math.IsNaN(d), "row %d delay", i)
		} else {
			assert.Equal(t, tt.delay, d, "row %d delay", i)
		}
		r, ok := ratio.Float(i)
		assert.Equal(t, tt.ratioSeen, ok, "row %d ratio presence", i)
		if tt.ratioSeen {
			assert.InDelta(t, tt.ratio, r, 1e-12, "row %d ratio", i)
		}
	}
}

func TestDelayCalculatorNamesMissingColumns(t *testing.T) {
	in := mustFrame(t, frame.NewFloat("other", []float64{1}))
	_, err := NewDelayCalculator(StageDelay, ColCurrentTravelTime, ColFreeFlowTravelTime).Apply(in)

	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{ColCurrentTravelTime, ColFreeFlowTravelTime}, serr.Columns)
	assert.Contains(t, err.Error(), ColFreeFlowTravelTime)
}

func TestCategorizeBoundaries(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{-0.3, LevelLow},
		{0, LevelLow},
		{0.15, LevelLow},
		{0.150001, LevelMedium},
		{0.5, LevelMedium},
		{0.500001, LevelHigh},
		{3, LevelHigh},
	}
	for _, tt := range tests {
		got, ok := Categorize(tt.ratio)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "ratio %v", tt.ratio)
	}

	_, ok := Categorize(math.NaN())
	assert.False(t, ok)
}

func TestTrafficLevelCategorizerPropagatesUndefined(t *testing.T) {
	in := mustFrame(t, frame.NewFloat(ColDelayRatio, []float64{0.2, math.NaN()}))
	out, err := NewTrafficLevelCategorizer(StageTrafficLevel, ColDelayRatio, ColTrafficLevel).Apply(in)
	require.NoError(t, err)

	col, _ := out.Column(ColTrafficLevel)
	v, ok := col.Str(0)
	assert.True(t, ok)
	assert.Equal(t, LevelMedium, v)
	_, ok = col.Str(1)
	assert.False(t, ok)
}

func TestTimestampDecomposerUsesLocalTime(t *testing.T) {
	in := mustFrame(t,
		frame.NewTime(ColTimestamp, []time.Time{time.Date(2025, 1, 1, 18, 30, 0, 0, time.UTC)}, nil),
		frame.NewString(ColRoad, []string{"MDR 62"}, nil),
	)
	out, err := NewTimestampDecomposer(StageTimestamp, ColTimestamp, LocalZone).Apply(in)
	require.NoError(t, err)

	assert.Equal(t, []string{ColRoad, ColDay, ColHour, ColMinute}, out.Schema().Names())
	assert.Equal(t, 2.0, floatAt(t, out, ColDay, 0))
	assert.Equal(t, 0.0, floatAt(t, out, ColHour, 0))
	assert.Equal(t, 0.0, floatAt(t, out, ColMinute, 0))
}

func TestTimestampDecomposerParsesStrings(t *testing.T) {
	in := mustFrame(t, frame.NewString(ColTimestamp, []string{
		"2025-01-01T18:30:00Z",
		"2025-01-01 18:30:00.250",
		"2025-01-01T20:00:00+05:30",
	}, nil))
	out, err := NewTimestampDecomposer(StageTimestamp, ColTimestamp, LocalZone).Apply(in)
	require.NoError(t, err)

	// no offset is read as UTC
	assert.Equal(t, 0.0, floatAt(t, out, ColHour, 1))
	assert.Equal(t, 2.0, floatAt(t, out, ColDay, 1))
	assert.Equal(t, 20.0, floatAt(t, out, ColHour, 2))
	assert.Equal(t, 1.0, floatAt(t, out, ColDay, 2))

	bad := mustFrame(t, frame.NewString(ColTimestamp, []string{"yesterday"}, nil))
	_, err = NewTimestampDecomposer(StageTimestamp, ColTimestamp, LocalZone).Apply(bad)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestCoordinateSplitter(t *testing.T) {
	s := NewCoordinateSplitter(StageCoordinates, ColPoint)

	out, err := s.Apply(mustFrame(t, frame.NewString(ColPoint, []string{"19.25,73.05"}, nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{ColLatitude, ColLongitude}, out.Schema().Names())
	assert.Equal(t, 19.25, floatAt(t, out, ColLatitude, 0))
	assert.Equal(t, 73.05, floatAt(t, out, ColLongitude, 0))

	for _, raw := range []string{"19.25", "19.25,73.05,1", "north,73.05", "19.25,"} {
		_, err := s.Apply(mustFrame(t, frame.NewString(ColPoint, []string{raw}, nil)))
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, "input %q", raw)
	}

	_, err = s.Apply(mustFrame(t, frame.NewString("elsewhere", []string{"1,2"}, nil)))
	var serr *SchemaError
	assert.ErrorAs(t, err, &serr)
}

func TestLabelEncoderRoundTrip(t *testing.T) {
	in := mustFrame(t, frame.NewString(ColTrafficLevel, []string{"Medium", "Low", "High", "Low"}, nil))
	st, err := NewLabelEncoder(StageEncodeTraffic, ColTrafficLevel).Fit(in)
	require.NoError(t, err)
	le := st.(*LabelEncoder)

	assert.Equal(t, []string{"High", "Low", "Medium"}, le.Classes())
	for _, v := range []string{"Low", "Medium", "High"} {
		code, err := le.Encode(v)
		require.NoError(t, err)
		back, err := le.Decode(code)
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}

	_, err = le.Encode("Gridlock")
	var unseen *UnseenCategoryError
	assert.ErrorAs(t, err, &unseen)

	_, err = le.Decode(3)
	var rangeErr *CodeRangeError
	assert.ErrorAs(t, err, &rangeErr)
	_, err = le.Decode(-1)
	assert.ErrorAs(t, err, &rangeErr)
}

func TestLabelEncoderBeforeFit(t *testing.T) {
	le := NewLabelEncoder(StageEncodeTraffic, ColTrafficLevel)
	var nf *NotFittedError

	_, err := le.Decode(0)
	assert.ErrorAs(t, err, &nf)
	_, err = le.Encode("Low")
	assert.ErrorAs(t, err, &nf)
	_, err = le.Apply(mustFrame(t, frame.NewString(ColTrafficLevel, []string{"Low"}, nil)))
	assert.ErrorAs(t, err, &nf)
}

func TestOrdinalEncoderNumericCategories(t *testing.T) {
	in := mustFrame(t, frame.NewFloat(ColFRC, []float64{10, 2, 2}))
	st, err := NewOrdinalEncoder(StageEncodeFRC, ColFRC).Fit(in)
	require.NoError(t, err)

	// "10" sorts before "2"
	assert.Equal(t, []string{"10", "2"}, st.(*OrdinalEncoder).Categories())
	out, err := st.Apply(in)
	require.NoError(t, err)
	assert.Equal(t, 0.0, floatAt(t, out, ColFRC, 0))
	assert.Equal(t, 1.0, floatAt(t, out, ColFRC, 1))
}
