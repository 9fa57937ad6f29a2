package metrics

// Unit is a CloudWatch metric unit.
type Unit string

const (
	Seconds            Unit = "Seconds"
	Microseconds       Unit = "Microseconds"
	Milliseconds       Unit = "Milliseconds"
	Bytes              Unit = "Bytes"
	Kilobytes          Unit = "Kilobytes"
	Megabytes          Unit = "Megabytes"
	Gigabytes          Unit = "Gigabytes"
	Terabytes          Unit = "Terabytes"
	Bits               Unit = "Bits"
	Kilobits           Unit = "Kilobits"
	Megabits           Unit = "Megabits"
	Gigabits           Unit = "Gigabits"
	Terabits           Unit = "Terabits"
	Percent            Unit = "Percent"
	Count              Unit = "Count"
	BytesPerSecond     Unit = "Bytes/Second"
	KilobytesPerSecond Unit = "Kilobytes/Second"
	MegabytesPerSecond Unit = "Megabytes/Second"
	GigabytesPerSecond Unit = "Gigabytes/Second"
	TerabytesPerSecond Unit = "Terabytes/Second"
	BitsPerSecond      Unit = "Bits/Second"
	KilobitsPerSecond  Unit = "Kilobits/Second"
	MegabitsPerSecond  Unit = "Megabits/Second"
	GigabitsPerSecond  Unit = "Gigabits/Second"
	TerabitsPerSecond  Unit = "Terabits/Second"
	CountPerSecond     Unit = "Count/Second"
	None               Unit = "None"
)

var knownUnits = map[Unit]struct{}{
	Seconds: {}, Microseconds: {}, Milliseconds: {},
	Bytes: {}, Kilobytes: {}, Megabytes: {}, Gigabytes: {}, Terabytes: {},
	Bits: {}, Kilobits: {}, Megabits: {}, Gigabits: {}, Terabits: {},
	Percent: {}, Count: {},
	BytesPerSecond: {}, KilobytesPerSecond: {}, MegabytesPerSecond: {}, GigabytesPerSecond: {}, TerabytesPerSecond: {},
	BitsPerSecond: {}, KilobitsPerSecond: {}, MegabitsPerSecond: {}, GigabitsPerSecond: {}, TerabitsPerSecond: {},
	CountPerSecond: {}, None: {},
}

// Valid reports whether u is a CloudWatch unit.
func (u Unit) Valid() bool {
	_, ok := knownUnits[u]
	return ok
}

// Resolution is the storage resolution of a metric, in seconds.
type Resolution int

const (
	StandardResolution Resolution = 60
	HighResolution     Resolution = 1
)
