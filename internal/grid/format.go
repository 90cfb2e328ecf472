package grid

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Relative tolerance under which dx and dy are written as a single cellsize.
const cellsizeTolerance = 1e-9

// WriteTopo writes t in GeoClaw topotype 3 format: a six line header followed
// by one line per row from north to south. Elevations are written with one
// decimal place.
func WriteTopo(w io.Writer, t *Topography) error {
	if err := t.Validate(); err != nil {
		return err
	}
	dx, err := spacing(t.X)
	if err != nil {
		return fmt.Errorf("x axis: %w", err)
	}
	dy, err := spacing(t.Y)
	if err != nil {
		return fmt.Errorf("y axis: %w", err)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%6d                              ncols\n", len(t.X))
	fmt.Fprintf(bw, "%6d                              nrows\n", len(t.Y))
	fmt.Fprintf(bw, "%22.15e              xlower\n", t.X[0])
	fmt.Fprintf(bw, "%22.15e              ylower\n", t.Y[0])
	if math.Abs(dx-dy) <= cellsizeTolerance*math.Max(dx, dy) {
		fmt.Fprintf(bw, "%22.15e              cellsize\n", dx)
	} else {
		fmt.Fprintf(bw, "%22.15e %22.15e   cellsize\n", dx, dy)
	}
	fmt.Fprintf(bw, "%10d                 nodata_value\n", NoDataValue)

	for j := len(t.Y) - 1; j >= 0; j-- {
		for i, z := range t.Z[j] {
			if i > 0 {
				bw.WriteByte(' ')
			}
			if math.IsNaN(z) {
				z = NoDataValue
			}
			bw.WriteString(strconv.FormatFloat(z, 'f', 1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadTopo parses a topotype 3 file written by WriteTopo or by GeoClaw tools.
func ReadTopo(r io.Reader) (*Topography, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	header := make([][]string, 0, 6)
	for len(header) < 6 && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		header = append(header, fields)
	}
	if len(header) < 6 {
		return nil, fmt.Errorf("topo header: want 6 lines, got %d", len(header))
	}

	ncols, err := strconv.Atoi(header[0][0])
	if err != nil {
		return nil, fmt.Errorf("topo header ncols: %w", err)
	}
	nrows, err := strconv.Atoi(header[1][0])
	if err != nil {
		return nil, fmt.Errorf("topo header nrows: %w", err)
	}
	xlower, err := strconv.ParseFloat(header[2][0], 64)
	if err != nil {
		return nil, fmt.Errorf("topo header xlower: %w", err)
	}
	ylower, err := strconv.ParseFloat(header[3][0], 64)
	if err != nil {
		return nil, fmt.Errorf("topo header ylower: %w", err)
	}
	dx, err := strconv.ParseFloat(header[4][0], 64)
	if err != nil {
		return nil, fmt.Errorf("topo header cellsize: %w", err)
	}
	dy := dx
	if len(header[4]) > 2 {
		if dy, err = strconv.ParseFloat(header[4][1], 64); err != nil {
			return nil, fmt.Errorf("topo header cellsize y: %w", err)
		}
	}
	if ncols < 2 || nrows < 2 {
		return nil, fmt.Errorf("topo header: grid %dx%d too small", ncols, nrows)
	}

	t := &Topography{
		X: Linspace(xlower, xlower+float64(ncols-1)*dx, ncols),
		Y: Linspace(ylower, ylower+float64(nrows-1)*dy, nrows),
		Z: make([][]float64, nrows),
	}

	values := make([]float64, 0, ncols*nrows)
	for sc.Scan() {
		for _, f := range strings.Fields(sc.Text()) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("topo value %q: %w", f, err)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read topo: %w", err)
	}
	if len(values) != ncols*nrows {
		return nil, fmt.Errorf("topo body: want %d values, got %d", ncols*nrows, len(values))
	}

	// The file lists rows from north to south.
	for k := 0; k < nrows; k++ {
		j := nrows - 1 - k
		t.Z[j] = values[k*ncols : (k+1)*ncols]
	}
	return t, nil
}

// WriteDTopo writes d in GeoClaw dtopotype 3 format: a nine line header
// (mx, my, mt, xlower, ylower, t0, dx, dy, dt) followed, for each time, by one
// line per row from north to south.
func WriteDTopo(w io.Writer, d *DTopography) error {
	if err := d.Validate(); err != nil {
		return err
	}
	dx, err := spacing(d.X)
	if err != nil {
		return fmt.Errorf("x axis: %w", err)
	}
	dy, err := spacing(d.Y)
	if err != nil {
		return fmt.Errorf("y axis: %w", err)
	}
	var dt float64
	if len(d.Times) > 1 {
		dt = d.Times[1] - d.Times[0]
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%7d       mx \n", len(d.X))
	fmt.Fprintf(bw, "%7d       my \n", len(d.Y))
	fmt.Fprintf(bw, "%7d       mt \n", len(d.Times))
	fmt.Fprintf(bw, "%20.14e   xlower\n", d.X[0])
	fmt.Fprintf(bw, "%20.14e   ylower\n", d.Y[0])
	fmt.Fprintf(bw, "%20.14e   t0\n", d.Times[0])
	fmt.Fprintf(bw, "%20.14e   dx\n", dx)
	fmt.Fprintf(bw, "%20.14e   dy\n", dy)
	fmt.Fprintf(bw, "%20.14e   dt\n", dt)

	for k := range d.Times {
		for j := len(d.Y) - 1; j >= 0; j-- {
			for _, v := range d.DZ[k][j] {
				fmt.Fprintf(bw, "%012.6e ", v)
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// ReadDTopo parses a dtopotype 3 file.
func ReadDTopo(r io.Reader) (*DTopography, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	header := make([]string, 0, 9)
	for len(header) < 9 && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		header = append(header, fields[0])
	}
	if len(header) < 9 {
		return nil, fmt.Errorf("dtopo header: want 9 lines, got %d", len(header))
	}

	ints := make([]int, 3)
	for i := range ints {
		v, err := strconv.Atoi(header[i])
		if err != nil {
			return nil, fmt.Errorf("dtopo header line %d: %w", i+1, err)
		}
		ints[i] = v
	}
	floats := make([]float64, 6)
	for i := range floats {
		v, err := strconv.ParseFloat(header[3+i], 64)
		if err != nil {
			return nil, fmt.Errorf("dtopo header line %d: %w", i+4, err)
		}
		floats[i] = v
	}
	mx, my, mt := ints[0], ints[1], ints[2]
	xlower, ylower, t0, dx, dy, dt := floats[0], floats[1], floats[2], floats[3], floats[4], floats[5]
	if mx < 2 || my < 2 || mt < 1 {
		return nil, fmt.Errorf("dtopo header: grid %dx%dx%d too small", mx, my, mt)
	}

	d := &DTopography{
		X:     Linspace(xlower, xlower+float64(mx-1)*dx, mx),
		Y:     Linspace(ylower, ylower+float64(my-1)*dy, my),
		Times: make([]float64, mt),
		DZ:    make([][][]float64, mt),
	}
	for k := range d.Times {
		d.Times[k] = t0 + float64(k)*dt
	}

	values := make([]float64, 0, mx*my*mt)
	for sc.Scan() {
		for _, f := range strings.Fields(sc.Text()) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("dtopo value %q: %w", f, err)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dtopo: %w", err)
	}
	if len(values) != mx*my*mt {
		return nil, fmt.Errorf("dtopo body: want %d values, got %d", mx*my*mt, len(values))
	}

	off := 0
	for k := 0; k < mt; k++ {
		d.DZ[k] = make([][]float64, my)
		for row := 0; row < my; row++ {
			d.DZ[k][my-1-row] = values[off : off+mx]
			off += mx
		}
	}
	return d, nil
}
