// Package agent creates new Ollama agents: it collects a definition, writes
// the modelfile and registers it with `ollama create`.
package agent

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Definition is written once as a modelfile and never changed afterwards.
type Definition struct {
	Name        string
	From        string // base model name or ./<file>.gguf
	Temperature float64
	System      string
	Template    string
}

func (d Definition) Modelfile() string {
	var b strings.Builder

	fmt.Fprintf(&b, "FROM %s\n", d.From)
	b.WriteString("#temperature higher -> creative, lower -> coherent\n")
	fmt.Fprintf(&b, "PARAMETER temperature %s\n", strconv.FormatFloat(d.Temperature, 'f', -1, 64))
	b.WriteString("\n#Set the system prompt\n")
	fmt.Fprintf(&b, "SYSTEM \"\"\"\n%s\n\"\"\"\n", d.System)
	if d.Template != "" {
		fmt.Fprintf(&b, "TEMPLATE \"\"\"\n%s\n\"\"\"\n", d.Template)
	}

	return b.String()
}

const (
	MinTemperature = 0.0
	MaxTemperature = 5.0
)

// ParseTemperature accepts typed or transcribed numbers ("0.7", "0.7.").
func ParseTemperature(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ". ")
	s = strings.ReplaceAll(s, ",", ".")

	t, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(t) {
		return 0, fmt.Errorf("temperature %q is not a number", s)
	}
	if t < MinTemperature || t > MaxTemperature {
		return 0, fmt.Errorf("temperature %v out of range [%v, %v]", t, MinTemperature, MaxTemperature)
	}
	return t, nil
}
