// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package config loads the posecoach configuration file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/pion/posecoach/keypoint"
	"github.com/pion/posecoach/media"
	"github.com/pion/posecoach/pose"
	"github.com/pion/posecoach/render"
	"github.com/pion/posecoach/transport"
	"gopkg.in/yaml.v3"
)

// DefaultServerURL is where the analysis service listens in development.
const DefaultServerURL = "http://localhost:8000"

// DefaultModelInputSize is the square input edge of the pose model.
const DefaultModelInputSize = 192

// EnvServerURL overrides server_url when set.
const EnvServerURL = "POSECOACH_SERVER_URL"

// Camera selects the capture backend.
type Camera string

// Capture backends.
const (
	CameraDevice  Camera = "device"
	CameraFile    Camera = "file"
	CameraVirtual Camera = "virtual"
)

var (
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid config")
	// ErrParse is returned for malformed files.
	ErrParse = errors.New("parse config")
)

// Config is the contents of a posecoach.yaml file.
type Config struct {
	ServerURL        string  `yaml:"server_url"`
	Exercise         string  `yaml:"exercise"`
	Resolution       string  `yaml:"resolution"`
	FacingMode       string  `yaml:"facing_mode"`
	DeviceID         string  `yaml:"device_id,omitempty"`
	TargetFPS        int     `yaml:"target_fps"`
	MaxBufferedBytes int     `yaml:"max_buffered_bytes"`
	MinScore         float64 `yaml:"min_score"`
	RenderThreshold  float64 `yaml:"render_threshold"`
	ModelPath        string  `yaml:"model_path,omitempty"`
	ModelInputSize   int     `yaml:"model_input_size"`
	Camera           Camera  `yaml:"camera"`
	VideoFile        string  `yaml:"video_file,omitempty"`
	StatsAddr        string  `yaml:"stats_addr,omitempty"`
	FrameLog         string  `yaml:"frame_log,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ServerURL:        DefaultServerURL,
		Exercise:         string(keypoint.PushUp),
		Resolution:       string(media.Res720p),
		FacingMode:       string(media.FacingUser),
		TargetFPS:        pose.DefaultTargetFPS,
		MaxBufferedBytes: transport.DefaultMaxBufferedBytes,
		RenderThreshold:  render.DefaultThreshold,
		ModelInputSize:   DefaultModelInputSize,
		Camera:           CameraDevice,
	}
}

// Load reads the config at path on top of Default. A missing file yields the
// defaults; keys absent from the file keep their default values while keys
// present, zero included, replace them.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // Path is chosen by the user
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParse, err)
			}
		}
	}

	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.ServerURL = v
	}

	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects values the pipeline cannot run with and clamps the
// sampling rate into its supported range.
func (c *Config) Validate() error {
	if _, err := transport.URL(c.ServerURL, keypoint.PushUp); err != nil {
		return fmt.Errorf("%w: server_url: %w", ErrInvalid, err)
	}
	if _, err := keypoint.ParseExercise(c.Exercise); err != nil {
		return fmt.Errorf("%w: exercise: %w", ErrInvalid, err)
	}
	if _, err := media.ParseResolution(c.Resolution); err != nil {
		return fmt.Errorf("%w: resolution: %w", ErrInvalid, err)
	}
	switch media.FacingMode(c.FacingMode) {
	case media.FacingUser, media.FacingEnvironment:
	default:
		return fmt.Errorf("%w: facing_mode %q", ErrInvalid, c.FacingMode)
	}
	switch c.Camera {
	case CameraDevice, CameraVirtual:
	case CameraFile:
		if c.VideoFile == "" {
			return fmt.Errorf("%w: camera %q needs video_file", ErrInvalid, c.Camera)
		}
	default:
		return fmt.Errorf("%w: camera %q", ErrInvalid, c.Camera)
	}
	if c.MaxBufferedBytes <= 0 {
		return fmt.Errorf("%w: max_buffered_bytes %d", ErrInvalid, c.MaxBufferedBytes)
	}
	if !inUnit(c.MinScore) {
		return fmt.Errorf("%w: min_score %v", ErrInvalid, c.MinScore)
	}
	if !inUnit(c.RenderThreshold) {
		return fmt.Errorf("%w: render_threshold %v", ErrInvalid, c.RenderThreshold)
	}
	if c.ModelInputSize <= 0 || c.ModelInputSize%32 != 0 {
		return fmt.Errorf("%w: model_input_size %d must be a positive multiple of 32", ErrInvalid, c.ModelInputSize)
	}

	c.TargetFPS = max(pose.MinTargetFPS, min(pose.MaxTargetFPS, c.TargetFPS))

	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Constraints returns the camera constraints described by c.
func (c *Config) Constraints() media.Constraints {
	return media.Constraints{
		Resolution: media.Resolution(c.Resolution),
		FacingMode: media.FacingMode(c.FacingMode),
		DeviceID:   c.DeviceID,
	}
}
