package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/DHI-GRAS/tidepods"
)

// Timestep of every requested prediction.
const Timestep = 30 * time.Minute

const (
	requestTarget = "TidePredictor"
	outputSection = "File_1"
	pointPrefix   = "Point_"
	seriesExt     = ".dfs0"
)

// A Request asks the engine for a full year of predictions at a set of points.
type Request struct {
	Name             string
	ConstituentsFile string
	PrepackFile      string
	Year             int
	Timestep         time.Duration
	// OutputFile is the base name of the series the engine writes next to the
	// request file.
	OutputFile  string
	Description string
	Points      []tidepods.SamplePoint
}

// NewRequest builds the request covering the calendar year of at.
func NewRequest(name string, inst Installation, at time.Time, output string, points []tidepods.SamplePoint) *Request {
	return &Request{
		Name:             name,
		ConstituentsFile: inst.Constituents,
		PrepackFile:      inst.Prepack,
		Year:             at.UTC().Year(),
		Timestep:         Timestep,
		OutputFile:       output,
		Description:      "Predicted Tide Level",
		Points:           points,
	}
}

// Start returns January 1st of the request year.
func (r *Request) Start() time.Time {
	return time.Date(r.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// End returns December 31st of the request year.
func (r *Request) End() time.Time {
	return time.Date(r.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// Section returns the request as a PFS tree.
func (r *Request) Section() *Section {
	root := &Section{Name: requestTarget}
	root.Add("Name", String(r.Name)).
		Add("constituent_file_name", String(r.ConstituentsFile)).
		Add("prepack_file_name", String(r.PrepackFile)).
		Add("start_date", Date(r.Start())).
		Add("end_date", Date(r.End())).
		Add("timestep", Double(r.Timestep.Hours())).
		Add("number_of_files", Int(1)).
		Add("ShowGeographic", Int(1))
	file := root.AddSection(outputSection)
	file.Add("format", Int(0)).
		Add("file_name", FileName(r.OutputFile)).
		Add("description", String(r.Description)).
		Add("number_of_points", Int(len(r.Points)))
	for _, p := range r.Points {
		file.AddSection(pointPrefix+strconv.Itoa(p.ID)).
			Add("description", Int(p.ID)).
			Add("y", Double(p.Y)).
			Add("x", Double(p.X))
	}
	return root
}

func (r *Request) WriteTo(w io.Writer) (int64, error) {
	return r.Section().WriteTo(w)
}

// WriteFile writes the request to path.
func (r *Request) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write request %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close request %s: %w", path, err)
	}
	return nil
}

// ReadRequest parses a request written by WriteTo.
func ReadRequest(rd io.Reader) (*Request, error) {
	roots, err := ParsePFS(rd)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	var root *Section
	for _, s := range roots {
		if s.Name == requestTarget {
			root = s
			break
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse request: no [%s] section", requestTarget)
	}
	r := &Request{}
	if r.Name, err = root.Text("Name"); err != nil {
		return nil, err
	}
	if r.ConstituentsFile, err = root.Text("constituent_file_name"); err != nil {
		return nil, err
	}
	if r.PrepackFile, err = root.Text("prepack_file_name"); err != nil {
		return nil, err
	}
	start, err := root.Date("start_date")
	if err != nil {
		return nil, err
	}
	r.Year = start.Year()
	hours, err := root.Double("timestep")
	if err != nil {
		return nil, err
	}
	r.Timestep = time.Duration(hours * float64(time.Hour))

	file, ok := root.Section(outputSection)
	if !ok {
		return nil, fmt.Errorf("parse request: no [%s] section", outputSection)
	}
	if r.OutputFile, err = file.Text("file_name"); err != nil {
		return nil, err
	}
	if r.Description, err = file.Text("description"); err != nil {
		return nil, err
	}
	n, err := file.Int("number_of_points")
	if err != nil {
		return nil, err
	}
	for _, ps := range file.Sections {
		if !strings.HasPrefix(ps.Name, pointPrefix) {
			continue
		}
		id, err := ps.Int("description")
		if err != nil {
			return nil, err
		}
		y, err := ps.Double("y")
		if err != nil {
			return nil, err
		}
		x, err := ps.Double("x")
		if err != nil {
			return nil, err
		}
		r.Points = append(r.Points, tidepods.SamplePoint{ID: id, X: x, Y: y})
	}
	if len(r.Points) != n {
		return nil, fmt.Errorf("parse request: number_of_points is %d, found %d point sections", n, len(r.Points))
	}
	return r, nil
}

// OutputPath returns where the engine writes the series of the request
// stored at requestPath: a sibling file named after the request's stem.
func OutputPath(requestPath string) string {
	ext := filepath.Ext(requestPath)
	return strings.TrimSuffix(requestPath, ext) + seriesExt
}
