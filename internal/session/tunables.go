package session

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/lexicon"
)

var errConvert = errors.New("error converting value")

type tunable struct {
	get func(*Session) string
	set func(*Session, string) error
}

// tunables backs get and set; keys match command.Tunables.
var tunables = map[string]tunable{
	"cc_ratio":     floatParam(func(p *lexicon.Params) *float64 { return &p.CocategorizeRatio }),
	"cc_travel":    intParam(func(p *lexicon.Params) *int { return &p.TravelDistance }),
	"cc_magnitude": intParam(func(p *lexicon.Params) *int { return &p.CocategorizeMagnitude }),
	"fwd_edge":     intParam(func(p *lexicon.Params) *int { return &p.ForwardEdgeDistance }),
	"bwd_edge":     intParam(func(p *lexicon.Params) *int { return &p.BackwardEdgeDistance }),
	"fwd_word":     intParam(func(p *lexicon.Params) *int { return &p.ForwardWordDistance }),
	"bwd_word":     intParam(func(p *lexicon.Params) *int { return &p.BackwardWordDistance }),
	"max_walk":     intParam(func(p *lexicon.Params) *int { return &p.MaxWalk }),
	"think_times": {
		get: func(s *Session) string { return strconv.Itoa(s.thinkTimes) },
		set: func(s *Session, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: %v", errConvert, err)
			}
			if n < 0 {
				return fmt.Errorf("think_times must not be negative, got %d", n)
			}
			s.thinkTimes = n
			return nil
		},
	},
}

func floatParam(field func(*lexicon.Params) *float64) tunable {
	return tunable{
		get: func(s *Session) string {
			return strconv.FormatFloat(*field(&s.params), 'g', -1, 64)
		},
		set: func(s *Session, value string) error {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("%w: %v", errConvert, err)
			}
			p := s.params
			*field(&p) = f
			return s.setParams(p)
		},
	}
}

func intParam(field func(*lexicon.Params) *int) tunable {
	return tunable{
		get: func(s *Session) string { return strconv.Itoa(*field(&s.params)) },
		set: func(s *Session, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: %v", errConvert, err)
			}
			p := s.params
			*field(&p) = n
			return s.setParams(p)
		},
	}
}

func (s *Session) setParams(p lexicon.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.params = p
	return nil
}

// TuneCommands returns the set commands that bring a running session in line
// with e. The config watcher feeds them through Exec.
func TuneCommands(e config.EngineConfig) [][]string {
	p := e.Params()
	set := func(name, value string) []string { return []string{"set", name, value} }
	return [][]string{
		set("cc_ratio", strconv.FormatFloat(p.CocategorizeRatio, 'g', -1, 64)),
		set("cc_travel", strconv.Itoa(p.TravelDistance)),
		set("cc_magnitude", strconv.Itoa(p.CocategorizeMagnitude)),
		set("fwd_edge", strconv.Itoa(p.ForwardEdgeDistance)),
		set("bwd_edge", strconv.Itoa(p.BackwardEdgeDistance)),
		set("fwd_word", strconv.Itoa(p.ForwardWordDistance)),
		set("bwd_word", strconv.Itoa(p.BackwardWordDistance)),
		set("max_walk", strconv.Itoa(p.MaxWalk)),
		set("think_times", strconv.Itoa(e.ThinkTimes)),
	}
}
