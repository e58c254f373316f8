package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Write one tab-separated line per power/on-off report,
 *		flushed after every line. Mirrors asokapy's
 *		Server.report_data.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// Datalog receives one report per accepted inbound frame after which
// the device's power or on/off state is known.
type Datalog interface {
	Report(at time.Time, mac MAC, isOn *bool, powerWatts *float64) error
}

// FileDatalog writes tab-separated lines to an underlying writer,
// flushing after each one.
type FileDatalog struct {
	w *bufio.Writer
	f io.Closer
}

// NewFileDatalog wraps w (typically an *os.File opened for append) as
// a Datalog.
func NewFileDatalog(w io.Writer) *FileDatalog {
	closer, _ := w.(io.Closer)

	return &FileDatalog{w: bufio.NewWriter(w), f: closer}
}

// Report writes "unix_time_s\tmac\tisOn\tpower\n", using "" for
// unknown isOn/power fields, and flushes immediately.
func (d *FileDatalog) Report(at time.Time, mac MAC, isOn *bool, powerWatts *float64) error {
	onField := ""

	if isOn != nil {
		if *isOn {
			onField = "1"
		} else {
			onField = "0"
		}
	}

	powerField := ""
	if powerWatts != nil {
		powerField = fmt.Sprintf("%.1f", *powerWatts)
	}

	_, err := fmt.Fprintf(d.w, "%.2f\t%s\t%s\t%s\n", float64(at.UnixNano())/1e9, mac.String(), onField, powerField)
	if err != nil {
		return err
	}

	return d.w.Flush()
}

// Close flushes and, if the underlying writer is closeable, closes it.
func (d *FileDatalog) Close() error {
	if err := d.w.Flush(); err != nil {
		return err
	}

	if d.f != nil {
		return d.f.Close()
	}

	return nil
}
