package codec

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type reading struct {
	Sensor string  `json:"sensor"`
	Value  float64 `json:"value"`
}

type counter int

func (c counter) String() string {
	return "count=" + strconv.Itoa(int(c))
}

func TestJSONEncoder(t *testing.T) {
	t.Parallel()

	enc := JSON[reading]()
	data, err := enc(reading{Sensor: "t1", Value: 21.5})
	require.NoError(t, err)
	require.JSONEq(t, `{"sensor":"t1","value":21.5}`, string(data))
}

func TestJSONEncoderReportsFailures(t *testing.T) {
	t.Parallel()

	enc := JSON[chan int]()
	_, err := enc(make(chan int))
	require.Error(t, err)
	require.Contains(t, err.Error(), "marshal json")
}

func TestRawEncoderCopies(t *testing.T) {
	t.Parallel()

	buf := []byte("abc")
	data, err := Raw()(buf)
	require.NoError(t, err)
	buf[0] = 'z'
	require.Equal(t, "abc", string(data))
}

func TestStringAndTextEncoders(t *testing.T) {
	t.Parallel()

	data, err := String()("hello")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	data, err = Text[counter]()(counter(3))
	require.NoError(t, err)
	require.Equal(t, "count=3", string(data))
}
