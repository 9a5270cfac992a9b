package config

import (
	"errors"
	"fmt"
	"math/bits"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if err := c.Pixels.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pixels: %w", err))
	}

	if c.Reload.Interval <= 0 {
		errs = append(errs, errors.New("reload.interval must be positive"))
	}

	if err := c.Compression.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("compression: %w", err))
	}

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the pixel resolution configuration.
func (c *PixelConfig) Validate() error {
	var errs []error

	if !isPowerOfTwo(c.CoarseNside) {
		errs = append(errs, fmt.Errorf("coarse_nside %d is not a power of two", c.CoarseNside))
	}
	if !isPowerOfTwo(c.FineNside) {
		errs = append(errs, fmt.Errorf("fine_nside %d is not a power of two", c.FineNside))
	}
	if c.FineNside <= c.CoarseNside {
		errs = append(errs, fmt.Errorf("fine_nside %d must exceed coarse_nside %d", c.FineNside, c.CoarseNside))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the compression configuration.
func (c *CompressionConfig) Validate() error {
	switch c.Algorithm {
	case "", "none", "snappy", "zstd", "lz4", "gzip":
	default:
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}
	if c.Algorithm == "zstd" && (c.Level < 0 || c.Level > 22) {
		return fmt.Errorf("zstd level %d out of range 0-22", c.Level)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
