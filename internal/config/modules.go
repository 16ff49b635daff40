package config

import (
	_ "github.com/any-image/any-image/internal/codec/avif"
	_ "github.com/any-image/any-image/internal/codec/webp"
)
