package loadtest

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultResubmit      = 20
	ProgressInterval     = time.Second
	PercentageMultiplier = 100
)

// Synthetic student distribution.
const (
	gradesMean       = 70.0
	gradesStdDev     = 15.0
	attendanceMean   = 85.0
	attendanceStdDev = 10.0
	incidentsLambda  = 2.0
	percentMax       = 100.0
	incidentsMax     = 10.0
)

// Defect kinds for invalid cases.
const (
	DefectMissing    = "missing"
	DefectOutOfRange = "out_of_range"
	DefectNotNumeric = "not_numeric"
)
