// Package export renders a travel and its itineraries as a downloadable
// PDF summary.
package export

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/phpdave11/gofpdf"

	"wayfare/api/internal/store"
)

// ActivityLine is one row in the rendered schedule.
type ActivityLine struct {
	Activity store.Activity
	Place    *store.Place
}

// DaySection groups the activities scheduled on one itinerary day.
type DaySection struct {
	Itinerary  store.Itinerary
	Activities []ActivityLine
}

// TravelSummary is the assembled input for rendering.
type TravelSummary struct {
	Travel   store.Travel
	Days     []DaySection
	Wishlist []ActivityLine
}

// BuildSummary groups activities into their day (or the wishlist) and
// sorts each group by order index, id breaking ties.
func BuildSummary(travel store.Travel, itineraries []store.Itinerary, activities []store.Activity, places map[string]store.Place) TravelSummary {
	summary := TravelSummary{Travel: travel}

	byDay := make(map[string][]ActivityLine)
	for _, act := range activities {
		line := ActivityLine{Activity: act}
		if act.PlaceID != nil {
			if place, ok := places[*act.PlaceID]; ok {
				p := place
				line.Place = &p
			}
		}
		if act.ItineraryID == nil {
			summary.Wishlist = append(summary.Wishlist, line)
			continue
		}
		byDay[*act.ItineraryID] = append(byDay[*act.ItineraryID], line)
	}

	sortLines(summary.Wishlist)

	days := append([]store.Itinerary(nil), itineraries...)
	sort.Slice(days, func(i, j int) bool {
		di, dj := days[i].Date, days[j].Date
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di == nil && dj != nil:
			return false
		case di != nil && dj == nil:
			return true
		}
		return days[i].ID < days[j].ID
	})
	for _, day := range days {
		lines := byDay[day.ID]
		sortLines(lines)
		summary.Days = append(summary.Days, DaySection{Itinerary: day, Activities: lines})
	}

	return summary
}

func sortLines(lines []ActivityLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Activity.OrderIndex != lines[j].Activity.OrderIndex {
			return lines[i].Activity.OrderIndex < lines[j].Activity.OrderIndex
		}
		return lines[i].Activity.ID < lines[j].Activity.ID
	})
}

// PDF renders the summary as an A4 document.
func PDF(summary TravelSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(summary.Travel.Title, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, summary.Travel.Title)
	pdf.Ln(10)

	if summary.Travel.Description != "" {
		pdf.SetFont("Arial", "", 12)
		pdf.Cell(0, 8, summary.Travel.Description)
		pdf.Ln(8)
	}
	if summary.Travel.StartsOn != nil && summary.Travel.EndsOn != nil {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, fmt.Sprintf("%s to %s",
			summary.Travel.StartsOn.Format("Jan 2, 2006"),
			summary.Travel.EndsOn.Format("Jan 2, 2006")))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	for _, day := range summary.Days {
		pdf.SetFont("Arial", "B", 13)
		title := day.Itinerary.Title
		if day.Itinerary.Date != nil {
			title = day.Itinerary.Date.Format("Monday, Jan 2")
			if day.Itinerary.Title != "" {
				title = fmt.Sprintf("%s - %s", title, day.Itinerary.Title)
			}
		}
		pdf.Cell(0, 9, title)
		pdf.Ln(9)
		writeLines(pdf, day.Activities, "No activities planned for this day.")
		pdf.Ln(3)
	}

	if len(summary.Wishlist) > 0 {
		pdf.SetFont("Arial", "B", 13)
		pdf.Cell(0, 9, "Wishlist")
		pdf.Ln(9)
		writeLines(pdf, summary.Wishlist, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeLines(pdf *gofpdf.Fpdf, lines []ActivityLine, empty string) {
	if len(lines) == 0 {
		if empty != "" {
			pdf.SetFont("Arial", "I", 10)
			pdf.Cell(0, 6, empty)
			pdf.Ln(6)
		}
		return
	}
	for i, line := range lines {
		pdf.SetFont("Arial", "", 11)
		text := fmt.Sprintf("%d. %s", i+1, line.Activity.Title)
		pdf.Cell(0, 7, text)
		pdf.Ln(7)
		if line.Place != nil {
			pdf.SetFont("Arial", "I", 9)
			detail := line.Place.Name
			if line.Place.Address != nil {
				detail = fmt.Sprintf("%s, %s", detail, *line.Place.Address)
			}
			pdf.Cell(0, 5, "    "+detail)
			pdf.Ln(5)
		}
		if line.Activity.Notes != "" {
			pdf.SetFont("Arial", "", 9)
			pdf.Cell(0, 5, "    "+line.Activity.Notes)
			pdf.Ln(5)
		}
	}
}
