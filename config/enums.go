package config

// Specification of cover image resizing mode.
// ENUM(none, keepAR, stretch)
type CoverResize int
