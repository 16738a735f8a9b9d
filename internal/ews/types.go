package ews

// InkColor identifies one of the four cartridges.
type InkColor string

const (
	InkBlack   InkColor = "K"
	InkCyan    InkColor = "C"
	InkMagenta InkColor = "M"
	InkYellow  InkColor = "Y"
)

// inkOrder fixes the display position of each cartridge: K, C, M, Y.
var inkOrder = map[InkColor]int{InkBlack: 0, InkCyan: 1, InkMagenta: 2, InkYellow: 3}

// InkState describes the condition of one cartridge.
type InkState string

const (
	InkOK      InkState = "ok"
	InkLow     InkState = "low"
	InkUsed    InkState = "used"
	InkEmpty   InkState = "empty"
	InkMissing InkState = "missing"
)

// InkLevel is one cartridge's remaining level and condition.
type InkLevel struct {
	Color   InkColor `json:"color"`
	Percent int      `json:"percent"`
	State   InkState `json:"state"`
}

// PaperState describes the input tray condition.
type PaperState string

const (
	PaperReady   PaperState = "ready"
	PaperMissing PaperState = "missing"
	PaperJam     PaperState = "jam"
)

// PaperTray is the state of the main input tray.
type PaperTray struct {
	State PaperState `json:"state"`
}

// PrinterState is the device's overall condition.
type PrinterState string

const (
	PrinterReady       PrinterState = "ready"
	PrinterProcessing  PrinterState = "processing"
	PrinterInPowerSave PrinterState = "inPowerSave"
	PrinterError       PrinterState = "error"
)

// Severity ranks an alert. Unrecognized severities parse as Info.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// Alert is one entry of the device's alert table.
type Alert struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Color    string   `json:"color,omitempty"`
}

// PrinterStatus is the device state plus its current alert table.
type PrinterStatus struct {
	State  PrinterState `json:"state"`
	Alerts []Alert      `json:"alerts"`
}

// DeviceInfo holds the effectively static product description.
type DeviceInfo struct {
	Model        string   `json:"model"`
	Serial       string   `json:"serial"`
	Firmware     string   `json:"firmware"`
	MemoryKB     int      `json:"memoryKb"`
	Capabilities []string `json:"capabilities"`
}

// NetworkAdapter is one network interface of the device.
type NetworkAdapter struct {
	Name       string `json:"name"`
	MACAddress string `json:"macAddress"`
	IPAddress  string `json:"ipAddress"`
	// WifiSignal is the signal strength in percent, 0 for wired adapters.
	WifiSignal int `json:"wifiSignal"`
}

// NetworkInfo is the device's network configuration.
type NetworkInfo struct {
	Adapters []NetworkAdapter `json:"adapters"`
}

// UsageStats holds the device's cumulative counters.
type UsageStats struct {
	TotalImpressions int `json:"totalImpressions"`
	ColorImpressions int `json:"colorImpressions"`
	MonoImpressions  int `json:"monoImpressions"`
	ScanImages       int `json:"scanImages"`
	JamEvents        int `json:"jamEvents"`
}

// JobCategory classifies a queue entry by the feature that created it.
type JobCategory string

const (
	JobPrint JobCategory = "print"
	JobScan  JobCategory = "scan"
	JobCopy  JobCategory = "copy"
)

// JobState is the canonical queue-entry state. Unrecognized device states
// parse as pending.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobCanceled   JobState = "canceled"
)

// Job is one entry of the device job queue.
type Job struct {
	ID       string      `json:"id"`
	Category JobCategory `json:"category"`
	State    JobState    `json:"state"`
}
