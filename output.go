package gridtune

import (
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Status prefixes on result reporting, colored on Unix terminals.
var (
	messageFull    = "\x1b[32m[==========]\x1b[0m"
	messageHead    = "\x1b[32m[----------]\x1b[0m"
	messageRun     = "\x1b[32m[ RUN      ]\x1b[0m"
	messageOK      = "\x1b[32m[       OK ]\x1b[0m"
	messageWarning = "\x1b[33m[  WARNING ]\x1b[0m"
	messageFailure = "\x1b[31m[   FAILED ]\x1b[0m"
	messageResult  = "\x1b[32m[ RESULT   ]\x1b[0m"
	messageBest    = "\x1b[35m[     BEST ]\x1b[0m"
)

func init() {
	if runtime.GOOS == "windows" {
		messageFull = "[==========]"
		messageHead = "[----------]"
		messageRun = "[ RUN      ]"
		messageOK = "[       OK ]"
		messageWarning = "[  WARNING ]"
		messageFailure = "[   FAILED ]"
		messageResult = "[ RESULT   ]"
		messageBest = "[     BEST ]"
	}
}

func (t *Tuner) printFullf(format string, args ...any) {
	if !t.suppressOutput {
		fmt.Fprintf(t.out, "\n%s %s\n", messageFull, fmt.Sprintf(format, args...))
	}
}

func (t *Tuner) printHeader(header string) {
	if !t.suppressOutput {
		fmt.Fprintf(t.out, "\n%s %s\n", messageHead, header)
	}
}

func (t *Tuner) printRunf(format string, args ...any) {
	if !t.suppressOutput {
		fmt.Fprintf(t.out, "%s %s\n", messageRun, fmt.Sprintf(format, args...))
	}
}

func (t *Tuner) printOKf(format string, args ...any) {
	if !t.suppressOutput {
		fmt.Fprintf(t.out, "%s %s\n", messageOK, fmt.Sprintf(format, args...))
	}
}

func (t *Tuner) printFailuref(format string, args ...any) {
	if !t.suppressOutput {
		fmt.Fprintf(t.out, "%s %s\n", messageFailure, fmt.Sprintf(format, args...))
	}
}

func (t *Tuner) printWarning(message string) {
	if !t.suppressOutput {
		fmt.Fprintf(os.Stderr, "%s %s\n", messageWarning, message)
	}
}

func (t *Tuner) printWarningf(format string, args ...any) {
	t.printWarning(fmt.Sprintf(format, args...))
}

// printResult writes one result line: the kernel name, the time and every
// parameter setting. Failed runs report a zero time.
func (t *Tuner) printResult(w io.Writer, result TunerResult, message string) {
	if t.suppressOutput {
		return
	}
	elapsed := result.Time
	if math.IsInf(elapsed, 1) {
		elapsed = 0
	}
	fmt.Fprintf(w, "%s %s; ", message, result.KernelName)
	fmt.Fprintf(w, "%8.1f ms;", elapsed)
	for _, setting := range result.Configuration {
		fmt.Fprintf(w, "%9s;", setting.String())
	}
	fmt.Fprintf(w, "\n")
}

// PrintToScreen prints every valid result followed by the best one, and
// returns the best time in milliseconds (zero when nothing succeeded).
func (t *Tuner) PrintToScreen() float64 {
	best, found := t.BestResult()
	if !found {
		t.printHeader("No tuner results found")
		return 0
	}
	t.printHeader("Printing results to stdout")
	for _, result := range t.results {
		if result.Valid && !math.IsInf(result.Time, 1) {
			t.printResult(t.out, result, messageResult)
		}
	}
	t.printHeader("Printing best result to stdout")
	t.printResult(t.out, best, messageBest)
	return best.Time
}

// PrintFormatted prints the best result as a database entry line keyed by
// the device name.
func (t *Tuner) PrintFormatted() {
	best, found := t.BestResult()
	if !found {
		t.printHeader("No tuner results found")
		return
	}
	t.printHeader("Printing best result in database format to stdout")
	settings := make([]string, len(best.Configuration))
	for i, setting := range best.Configuration {
		settings[i] = fmt.Sprintf("{%q, %d}", setting.Name, setting.Value)
	}
	fmt.Fprintf(t.out, "{ %q, { %s } }\n", t.dev.Properties().Name, strings.Join(settings, ", "))
}

// MarshalJSON renders the configuration as an object with keys in
// parameter-declaration order.
func (c Configuration) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, setting := range c {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(setting.Name))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(setting.Value, 10))
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

type jsonResult struct {
	Kernel     string        `json:"kernel"`
	Time       float64       `json:"time"`
	Threads    int           `json:"threads"`
	Parameters Configuration `json:"parameters"`
}

type jsonReport struct {
	SessionID          string            `json:"session_id"`
	Descriptions       map[string]string `json:"descriptions,omitempty"`
	Device             string            `json:"device"`
	DeviceVendor       string            `json:"device_vendor"`
	DeviceCoreClock    int               `json:"device_core_clock"`
	DeviceComputeUnits int               `json:"device_compute_units"`
	Results            []jsonResult      `json:"results"`
}

// PrintJSON writes every valid result to a file as a JSON database,
// stamped with the session id and the device properties.
func (t *Tuner) PrintJSON(filename string, descriptions map[string]string) error {
	t.printHeader("Printing results to file in JSON format")
	props := t.dev.Properties()
	report := jsonReport{
		SessionID:          t.sessionID.String(),
		Descriptions:       descriptions,
		Device:             props.Name,
		DeviceVendor:       props.Vendor,
		DeviceCoreClock:    props.CoreClockMHz,
		DeviceComputeUnits: props.ComputeUnits,
		Results:            []jsonResult{},
	}
	for _, result := range t.results {
		if result.Valid && !math.IsInf(result.Time, 1) {
			report.Results = append(report.Results, jsonResult{
				Kernel:     result.KernelName,
				Time:       result.Time,
				Threads:    result.Threads,
				Parameters: result.Configuration,
			})
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return NewConfigurationError("PrintJSON", "could not marshal results: "+err.Error())
	}
	return os.WriteFile(filename, data, 0644)
}

// PrintToFile writes every valid result to a CSV file. Each kernel gets a
// header row listing its parameter names, then one row per result.
func (t *Tuner) PrintToFile(filename string) error {
	t.printHeader("Printing results to file: " + filename)
	file, err := os.Create(filename)
	if err != nil {
		return NewConfigurationError("PrintToFile", "could not create file: "+err.Error())
	}
	defer file.Close()

	var processedKernels []string
	for _, result := range t.results {
		if !result.Valid {
			continue
		}
		newKernel := true
		for _, name := range processedKernels {
			if name == result.KernelName {
				newKernel = false
				break
			}
		}
		processedKernels = append(processedKernels, result.KernelName)

		if newKernel {
			fmt.Fprintf(file, "name;time;threads;")
			for _, setting := range result.Configuration {
				fmt.Fprintf(file, "%s;", setting.Name)
			}
			fmt.Fprintf(file, "\n")
		}
		fmt.Fprintf(file, "%s;", result.KernelName)
		fmt.Fprintf(file, "%.2f;", result.Time)
		fmt.Fprintf(file, "%d;", result.Threads)
		for _, setting := range result.Configuration {
			fmt.Fprintf(file, "%d;", setting.Value)
		}
		fmt.Fprintf(file, "\n")
	}
	return nil
}

// SetOutput redirects the result printers, for tests and embedding hosts.
func (t *Tuner) SetOutput(w io.Writer) {
	t.out = w
}
