package utils

import "time"

const DefaultBufferSize = 1024 * 256 // 256KB copy buffer
const TempDirName = ".partfetch-temp"
const LogFile = ".partfetch.log"

const (
	DefaultAddress      = "127.0.0.1:65432"
	DefaultParts        = 4
	DefaultDialTimeout  = 10 * time.Second
	DefaultIOTimeout    = 30 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)
