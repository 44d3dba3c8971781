package astrohelion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/soniakeys/meeus/v3/julian"
)

// Names of the persisted fields.
const (
	FieldTime   = "Time"
	FieldState  = "State"
	FieldSTM    = "STM"
	FieldExtras = "Extras"
	FieldTOF    = "TOF"
	FieldEpoch  = "Epoch"
	FieldMu     = "Mu"
	FieldCharL  = "CharL"
	FieldCharT  = "CharT"
	FieldCharM  = "CharM"
)

// FieldWriter writes named numeric arrays to a data container.
type FieldWriter interface {
	WriteField(name string, data []float64) error
}

// FieldReader reads named numeric arrays from a data container.
type FieldReader interface {
	ReadField(name string) ([]float64, error)
}

// FieldMap is an in-memory data container.
type FieldMap map[string][]float64

// WriteField implements the FieldWriter interface.
func (f FieldMap) WriteField(name string, data []float64) error {
	f[name] = append([]float64(nil), data...)
	return nil
}

// ReadField implements the FieldReader interface.
func (f FieldMap) ReadField(name string) ([]float64, error) {
	data, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no field %s", name)
	}
	return append([]float64(nil), data...), nil
}

func saveSystem(w FieldWriter, sys *System) error {
	for name, val := range map[string]float64{FieldMu: sys.Mu, FieldCharL: sys.CharL, FieldCharT: sys.CharT, FieldCharM: sys.CharM} {
		if err := w.WriteField(name, []float64{val}); err != nil {
			return fmt.Errorf("writing %s: %s", name, err)
		}
	}
	return nil
}

// checkSystem returns an error if the saved system parameters differ from the provided system.
func checkSystem(r FieldReader, sys *System) error {
	mu, err := r.ReadField(FieldMu)
	if err != nil {
		return err
	}
	if len(mu) != 1 || mu[0] != sys.Mu {
		return fmt.Errorf("saved mass ratio %v does not match %s", mu, sys)
	}
	return nil
}

// ExportCSV writes the trajectory as CSV, in the rotating frame or in the inertial frame centered on
// the barycenter. If the system has a reference epoch, a Julian date column is added.
func ExportCSV(w io.Writer, tr *Trajectory, inertial bool) error {
	sys := tr.Model().System()
	withJD := !sys.Epoch.IsZero()
	cw := csv.NewWriter(w)
	header := []string{"t", "x", "y", "z", "vx", "vy", "vz", "jacobi"}
	if withJD {
		header = append(header, "jd")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < tr.Len(); i++ {
		t := tr.Time(i)
		state := tr.State(i)
		jc := tr.Jacobi(i)
		if inertial {
			state = RotatingToInertial(state, t)
		}
		record := []string{strconv.FormatFloat(t, 'g', 16, 64)}
		for _, val := range state {
			record = append(record, strconv.FormatFloat(val, 'g', 16, 64))
		}
		record = append(record, strconv.FormatFloat(jc, 'g', 16, 64))
		if withJD {
			record = append(record, strconv.FormatFloat(julian.TimeToJD(sys.Time(t)), 'f', 8, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
