package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-voice-booking/internal/availability"
)

func TestFindAvailableValidation(t *testing.T) {
	future := futureSlot(0).Format(time.RFC3339)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	cases := map[string]struct {
		body   any
		detail string
	}{
		"bad json":        {`{`, "Invalid JSON body"},
		"missing start":   {map[string]any{"service_id": 1}, "Missing required fields: start_time, service_id"},
		"missing service": {map[string]any{"start_time": future}, "Missing required fields: start_time, service_id"},
		"bad time":        {map[string]any{"start_time": "next tuesday", "service_id": 1}, "Invalid start_time format"},
		"past":            {map[string]any{"start_time": past, "service_id": 1}, "start_time must be in the future"},
		"unknown service": {map[string]any{"start_time": future, "service_id": "42"}, "Unknown service_id 42"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			finder := &fakeFinder{}
			h := NewAvailabilityHandler(finder, nil, time.UTC, nil)
			rec := postJSON(t, h.FindAvailable, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.detail, decodeMap(t, rec)["detail"])
			assert.Zero(t, finder.calls)
		})
	}
}

func TestFindAvailableReturnsPrimaryAndAlternatives(t *testing.T) {
	start := futureSlot(0)
	finder := &fakeFinder{result: availability.FindResult{
		PairResult: availability.PairResult{
			Status:     availability.PairFound,
			ExactMatch: false,
			Primary:    sequence(step(1, 10, start, 60), step(2, 20, start.Add(time.Hour), 30)),
			Alternates: []availability.SlotSequence{*sequence(step(1, 10, start.Add(2*time.Hour), 60), step(2, 20, start.Add(3*time.Hour), 30))},
		},
		PractitionerNames: map[int]string{10: "Ana Silva", 20: "Sebastien Lomas"},
	}}
	h := NewAvailabilityHandler(finder, nil, time.UTC, nil)

	rec := postJSON(t, h.FindAvailable, map[string]any{
		"start_time":  start.Format("2006-01-02T15:04:05"),
		"service_ids": []any{"1", 2},
		"duration":    90,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int{1, 2}, finder.ids)
	assert.True(t, finder.start.Equal(start))

	body := decodeMap(t, rec)
	assert.EqualValues(t, 10, body["practitioner_id"])
	assert.Equal(t, "Ana Silva", body["practitioner_name"])
	assert.Equal(t, false, body["exact_match"])
	slots := body["available_slots"].([]any)
	require.Len(t, slots, 2)
	second := slots[1].(map[string]any)
	assert.Equal(t, "Holistic Hygiene", second["service_name"])
	assert.Equal(t, "Sebastien Lomas", second["practitioner_name"])
	assert.Len(t, body["alternatives"], 1)
	assert.Contains(t, body["message"], "The closest available time is Biological New Consultation with Ana Silva on ")
	assert.Contains(t, body["message"], ", then Holistic Hygiene with Sebastien Lomas on ")
}

func TestFindAvailableReasonShim(t *testing.T) {
	start := futureSlot(0)
	finder := &fakeFinder{result: availability.FindResult{
		PairResult: availability.PairResult{Status: availability.PairFound, ExactMatch: true, Primary: sequence(step(3, 30, start, 15))},
	}}
	h := NewAvailabilityHandler(finder, nil, time.UTC, nil)

	rec := postJSON(t, h.FindAvailable, map[string]any{
		"start_time": start.Format(time.RFC3339),
		"reason":     "Holistic Hygiene Direct Access-3",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3}, finder.ids)
	body := decodeMap(t, rec)
	assert.Equal(t, "", body["practitioner_name"])
	assert.Contains(t, body["message"], "That time is available: Holistic Hygiene Direct Access with practitioner 30 on ")
}

func TestFindAvailableNoSlots(t *testing.T) {
	finder := &fakeFinder{result: availability.FindResult{
		PairResult: availability.PairResult{
			Status:               availability.PairDependentsUnavailable,
			UnavailableServiceID: 2,
			Message:              "no hygiene slot after the consultation",
		},
	}}
	h := NewAvailabilityHandler(finder, nil, time.UTC, nil)

	rec := postJSON(t, h.FindAvailable, map[string]any{"start_time": futureSlot(0).Format(time.RFC3339), "service_ids": []int{1, 2}})
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "No available slots for any practitioner in the requested window.", body["detail"])
	assert.Equal(t, "dependents_unavailable", body["status"])
	assert.EqualValues(t, 2, body["unavailable_service_id"])
}

func TestFindAvailableFinderError(t *testing.T) {
	h := NewAvailabilityHandler(&fakeFinder{err: errors.New("boom")}, nil, time.UTC, nil)
	rec := postJSON(t, h.FindAvailable, map[string]any{"start_time": futureSlot(0).Format(time.RFC3339), "service_id": 1})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
