package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	World World `yaml:"world"`

	TickIntervalMs     int `yaml:"tick_interval_ms"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	StateEveryTicks    int `yaml:"state_every_ticks"`

	Camera     Size       `yaml:"camera"`
	Avatar     Avatar     `yaml:"avatar"`
	Population Population `yaml:"population"`
	Session    Session    `yaml:"session"`
}

type World struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Rows   int     `yaml:"rows"`
	Cols   int     `yaml:"cols"`
}

type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type Avatar struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Step   float64 `yaml:"step"`
}

// Population describes the demo wanderers seeded at startup.
type Population struct {
	Wanderers int     `yaml:"wanderers"`
	Size      float64 `yaml:"size"`
	Speed     float64 `yaml:"speed"`
	Seed      int64   `yaml:"seed"`
}

type Session struct {
	MaxQueue      int `yaml:"max_queue"`
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
}

func Defaults() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

// ApplyDefaults fills every zero field.
func (t *Tuning) ApplyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.World.Width <= 0 {
		t.World.Width = 1000
	}
	if t.World.Height <= 0 {
		t.World.Height = 1000
	}
	if t.World.Rows <= 0 {
		t.World.Rows = 20
	}
	if t.World.Cols <= 0 {
		t.World.Cols = 20
	}
	if t.TickIntervalMs <= 0 {
		t.TickIntervalMs = 100
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 3000
	}
	if t.StateEveryTicks <= 0 {
		t.StateEveryTicks = 1
	}
	if t.Camera.Width <= 0 {
		t.Camera.Width = 160
	}
	if t.Camera.Height <= 0 {
		t.Camera.Height = 90
	}
	if t.Avatar.Width <= 0 {
		t.Avatar.Width = 4
	}
	if t.Avatar.Height <= 0 {
		t.Avatar.Height = 4
	}
	if t.Avatar.Step <= 0 {
		t.Avatar.Step = 2
	}
	if t.Population.Size <= 0 {
		t.Population.Size = 3
	}
	if t.Population.Speed <= 0 {
		t.Population.Speed = 1
	}
	if t.Session.MaxQueue <= 0 {
		t.Session.MaxQueue = 64
	}
	if t.Session.ReadTimeoutMs <= 0 {
		t.Session.ReadTimeoutMs = 60_000
	}
}

func (t Tuning) Validate() error {
	var errs []error
	if t.World.Width <= 0 || t.World.Height <= 0 {
		errs = append(errs, fmt.Errorf("world: size must be positive, got %vx%v", t.World.Width, t.World.Height))
	}
	if t.World.Rows <= 0 || t.World.Cols <= 0 {
		errs = append(errs, fmt.Errorf("world: rows/cols must be positive, got %dx%d", t.World.Rows, t.World.Cols))
	}
	if t.TickIntervalMs <= 0 {
		errs = append(errs, errors.New("tick_interval_ms must be positive"))
	}
	if t.Population.Wanderers < 0 {
		errs = append(errs, errors.New("population.wanderers must not be negative"))
	}
	if t.Camera.Width > t.World.Width || t.Camera.Height > t.World.Height {
		errs = append(errs, errors.New("camera larger than the world"))
	}
	return errors.Join(errs...)
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
