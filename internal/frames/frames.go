// Package frames discovers rendered simulation frames and the simulation time
// each one was written at.
package frames

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/seantiz/tsunami/internal/model"
)

var plotPattern = regexp.MustCompile(`^frame(\d{4})fig0\.png$`)

// PlotName returns the plot file name for frame n.
func PlotName(n int) string {
	return fmt.Sprintf("frame%04dfig0.png", n)
}

// TimeName returns the time record file name for frame n.
func TimeName(n int) string {
	return fmt.Sprintf("fort.t%04d", n)
}

// Scan returns the ascending frame numbers of the plots in plotDir. A missing
// directory yields an empty list.
func Scan(plotDir string) ([]int, error) {
	entries, err := os.ReadDir(plotDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("read plot dir: %w", err)
	}

	nums := []int{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := plotPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums, nil
}

// ReadTime returns the simulation time in seconds recorded for frame n. The
// boolean is false when the record is missing, empty, unparsable or not finite. Any other
// I/O failure is returned as an error.
func ReadTime(outDir string, n int) (float64, bool, error) {
	f, err := os.Open(filepath.Join(outDir, TimeName(n)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("open time record %d: %w", n, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, false, fmt.Errorf("read time record %d: %w", n, err)
		}
		return 0, false, nil
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return 0, false, nil
	}
	t, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, false, nil
	}
	return t, true, nil
}

// Index scans plotDir and attaches the time of each frame from outDir. Frames
// whose time is unavailable carry a nil T. The first unexpected read error is
// returned alongside the complete index, with that frame's T left nil.
func Index(outDir, plotDir string) ([]model.Frame, error) {
	nums, err := Scan(plotDir)
	if err != nil {
		return nil, err
	}

	var firstErr error
	out := make([]model.Frame, 0, len(nums))
	for _, n := range nums {
		fr := model.Frame{Frame: n}
		t, ok, err := ReadTime(outDir, n)
		switch {
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
		case ok:
			fr.T = &t
		}
		out = append(out, fr)
	}
	return out, firstErr
}
