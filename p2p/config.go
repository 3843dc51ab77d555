package p2p

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/chaincore/core/params"
	"github.com/naoina/toml"
)

// tomlSettings mirrors the teacher's cmd/ranger/config.go: TOML keys use
// the same names as the Go struct fields, and an unknown field in the file
// is a hard error rather than silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// SupervisorConfig groups the network supervisor's runtime-tunable knobs
// (spec §4.J, §6), loadable from TOML the same way the teacher loads node
// config.
type SupervisorConfig struct {
	HousekeepingInterval     time.Duration
	PeerCountRecyclingActive int
	ScoreInboundExchange     float64
	ConnectingCountMax       int
	ConnectBackoffInitial    time.Duration
	ConnectBackoffMax        time.Duration
}

// DefaultSupervisorConfig mirrors the compiled-in protocol constants.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		HousekeepingInterval:     params.HousekeepingInterval,
		PeerCountRecyclingActive: params.PeerCountRecyclingActive,
		ScoreInboundExchange:     params.ScoreInboundExchange,
		ConnectingCountMax:       params.ConnectingCountMax,
		ConnectBackoffInitial:    params.ConnectBackoffInitial,
		ConnectBackoffMax:        params.ConnectBackoffMax,
	}
}

// FileConfig is the top-level document LoadConfig decodes: pool quotas and
// supervisor timing in one TOML file, matching the teacher's single
// rangerConfig{Gxp, Node} document shape.
type FileConfig struct {
	Pool       Config
	Supervisor SupervisorConfig
}

// LoadConfig reads and decodes a TOML file into a FileConfig seeded with
// the compiled-in defaults, so a file only needs to override what it wants
// to change.
func LoadConfig(path string) (FileConfig, error) {
	cfg := FileConfig{Pool: DefaultConfig(), Supervisor: DefaultSupervisorConfig()}

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return cfg, err
}
