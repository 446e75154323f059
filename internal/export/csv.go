package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/nvandessel/colonysim/internal/constants"
	"github.com/nvandessel/colonysim/internal/models"
)

// csvHeader names the per-step columns written by WriteCSV.
var csvHeader = []string{
	"step", "month", "year",
	"focal_size", "focal_newborns", "focal_intact_males", "focal_neutered_males",
	"focal_non_breeding", "focal_estrus", "focal_pregnant", "focal_sterilized", "focal_amh",
	"focal_births", "focal_kitten_deaths", "focal_adult_deaths", "focal_overflow_deaths",
	"neighborhood_size", "neighborhood_newborns", "neighborhood_births",
	"arrivals", "removals", "dispersed_out", "dispersed_in", "immigrants", "orphans",
}

// WriteCSV writes one row per snapshot of the result's time series.
func WriteCSV(w io.Writer, result *models.SimulationResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, s := range result.Snapshots {
		f, n, m := s.Focal, s.Neighborhood, s.Migration
		row := []string{
			strconv.Itoa(s.Step),
			strconv.Itoa(s.Month),
			num(float64(s.Step) / constants.StepsPerYear),
			num(f.Size()), num(f.Newborns()), num(f.IntactMales), num(f.NeuteredMales),
			num(f.NonBreeding), num(f.Estrus), num(f.Pregnant), num(f.Sterilized), num(f.AMH),
			num(f.Events.Births), num(f.Events.KittenDeaths), num(f.Events.AdultDeaths), num(f.Events.OverflowDeaths),
			num(n.Size()), num(n.Newborns()), num(n.Events.Births),
			num(m.Arrivals), num(m.Removals), num(m.DispersedOut), num(m.DispersedIn), num(m.Immigrants),
			num(m.FocalOrphans + m.NeighborhoodOrphans),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for step %d: %w", s.Step, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
