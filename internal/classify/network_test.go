package classify

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/phishlens/internal/extract"
)

func jsonRow(v float64, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// logitNetwork is sigmoid(w·x + b) with every weight equal to w
func logitNetwork(t *testing.T, w, b float64) *Network {
	t.Helper()
	src := fmt.Sprintf(`{"name":"test","version":"0","layers":[{"activation":"sigmoid","weights":[%s],"bias":[%g]}]}`,
		jsonRow(w, extract.NumFeatures), b)
	n, err := ReadNetwork(strings.NewReader(src))
	require.NoError(t, err)
	return n
}

func TestNetwork_Logit(t *testing.T) {
	n := logitNetwork(t, 0, 0)
	p, err := n.Infer(constVector(3))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)

	n = logitNetwork(t, 0.1, 0)
	p, err = n.Infer(constVector(1))
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-2)), p, 1e-9)
}

func TestNetwork_HiddenLayer(t *testing.T) {
	src := fmt.Sprintf(`{"layers":[
		{"activation":"relu","weights":[%[1]s,%[1]s,%[1]s],"bias":[0,-100,1]},
		{"activation":"sigmoid","weights":[[1,1,-1]],"bias":[0]}
	]}`, jsonRow(1, extract.NumFeatures))

	n, err := ReadNetwork(strings.NewReader(src))
	require.NoError(t, err)

	// hidden = relu(20, -80, 21) = (20, 0, 21), output = sigmoid(-1)
	p, err := n.Infer(constVector(1))
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(-1), p, 1e-9)
}

func TestNetwork_Saturation(t *testing.T) {
	n := logitNetwork(t, 1, 0)

	p, err := n.Infer(constVector(1e6))
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	p, err = n.Infer(constVector(-1e6))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
}

func TestNetwork_WrongLength(t *testing.T) {
	n := logitNetwork(t, 1, 0)
	_, err := n.Infer(make([]float64, 19))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNetwork_ZeroValueIsUnavailable(t *testing.T) {
	var n Network
	_, err := n.Infer(constVector(0))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestReadNetwork_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no layers", `{"layers":[]}`, "no layers"},
		{"wrong input width", `{"layers":[{"activation":"sigmoid","weights":[[1,2]],"bias":[0]}]}`, "inputs"},
		{"bias mismatch", fmt.Sprintf(`{"layers":[{"activation":"sigmoid","weights":[%s],"bias":[0,1]}]}`, jsonRow(1, 20)), "biases"},
		{"unknown activation", fmt.Sprintf(`{"layers":[{"activation":"swish","weights":[%s],"bias":[0]}]}`, jsonRow(1, 20)), "activation"},
		{"linear output", fmt.Sprintf(`{"layers":[{"activation":"linear","weights":[%s],"bias":[0]}]}`, jsonRow(1, 20)), "sigmoid"},
		{"two outputs", fmt.Sprintf(`{"layers":[{"activation":"sigmoid","weights":[%[1]s,%[1]s],"bias":[0,0]}]}`, jsonRow(1, 20)), "sigmoid"},
		{"malformed", `{"layers":`, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadNetwork(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNetwork_ConcurrentInfer(t *testing.T) {
	n := logitNetwork(t, 0.05, -0.5)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p, err := n.Infer(constVector(x))
				if err != nil {
					t.Errorf("infer: %v", err)
					return
				}
				if want := sigmoid(0.05*x*20 - 0.5); math.Abs(p-want) > 1e-9 {
					t.Errorf("Expected %v, got %v", want, p)
					return
				}
			}
		}(float64(i))
	}
	wg.Wait()
}
