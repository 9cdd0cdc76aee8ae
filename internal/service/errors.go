package service

import "errors"

var (
	// ErrVideoNotFound is returned when a video ID has no record.
	ErrVideoNotFound = errors.New("video not found")
	// ErrAssetNotFound is returned when an asset ID has no record.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrUnknownSetting is returned for setting keys the pipeline does not read.
	ErrUnknownSetting = errors.New("unknown setting")
)
