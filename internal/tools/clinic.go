package tools

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
	"github.com/emeraldgrove/clinic-assistant/internal/repository"
)

// noParams is the JSON schema for tools that take no arguments.
var noParams = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

// NewCatalog builds the clinic tool catalog for one request. The access
// scope is captured by the executors: restricted callers get their own
// visits regardless of any owner-name argument the model supplies.
func NewCatalog(store repository.ClinicStore, accessScope domain.AccessScope, clinicInfo string) *Catalog {
	c := newCatalog()

	c.register("list_veterinarians",
		"List all veterinarians and their specialties",
		noParams,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			vets, err := store.ListVets(ctx)
			if err != nil {
				log.Printf("ERROR: list_veterinarians failed: %v", err)
				vets = []domain.VetSummary{}
			}
			return marshalResult(vets)
		})

	c.register("find_vets_by_specialty",
		"Find veterinarians by specialty name",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"specialty": map[string]interface{}{
					"type":        "string",
					"description": "Specialty name, e.g. surgery or radiology",
				},
			},
			"required": []string{"specialty"},
		},
		func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Specialty string `json:"specialty"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					log.Printf("WARN: find_vets_by_specialty bad args: %v", err)
				}
			}
			vets, err := store.ListVets(ctx)
			if err != nil {
				log.Printf("ERROR: find_vets_by_specialty failed: %v", err)
				vets = nil
			}
			matched := []domain.VetSummary{}
			for _, vet := range vets {
				for _, sp := range vet.Specialties {
					if strings.EqualFold(sp, in.Specialty) {
						matched = append(matched, vet)
						break
					}
				}
			}
			return marshalResult(matched)
		})

	c.register("list_pet_types",
		"List all pet types the clinic accepts",
		noParams,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			names, err := store.ListPetTypes(ctx)
			if err != nil {
				log.Printf("ERROR: list_pet_types failed: %v", err)
				names = []string{}
			}
			if names == nil {
				names = []string{}
			}
			return marshalResult(names)
		})

	c.register("upcoming_visits_for_owner",
		"Get upcoming scheduled visits for a named owner",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ownerLastName": map[string]interface{}{
					"type":        "string",
					"description": "Owner last name, or part of it",
				},
			},
		},
		func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			start, end := visitRange()

			if ownerID, ok := accessScope.OwnerID(); ok {
				// Restricted callers always get their own visits; the
				// model-supplied name filter is ignored.
				visits, err := store.FindUpcomingVisitsByOwner(ctx, ownerID, start, end)
				if err != nil {
					log.Printf("ERROR: upcoming_visits_for_owner failed: %v", err)
					visits = nil
				}
				return marshalResult(SummarizeVisits(visits))
			}

			var in struct {
				OwnerLastName string `json:"ownerLastName"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					log.Printf("WARN: upcoming_visits_for_owner bad args: %v", err)
				}
			}
			name := strings.TrimSpace(in.OwnerLastName)
			if name == "" {
				return marshalResult([]domain.VisitSummary{})
			}

			visits, err := store.FindUpcomingVisits(ctx, start, end)
			if err != nil {
				log.Printf("ERROR: upcoming_visits_for_owner failed: %v", err)
				visits = nil
			}
			normalized := strings.ToLower(name)
			var matched []domain.UpcomingVisit
			for _, uv := range visits {
				if strings.Contains(strings.ToLower(uv.OwnerName), normalized) {
					matched = append(matched, uv)
				}
			}
			return marshalResult(SummarizeVisits(matched))
		})

	c.register("upcoming_visits",
		"Get the next upcoming clinic visits across all owners",
		noParams,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			start, end := visitRange()

			if ownerID, ok := accessScope.OwnerID(); ok {
				visits, err := store.FindUpcomingVisitsByOwner(ctx, ownerID, start, end)
				if err != nil {
					log.Printf("ERROR: upcoming_visits failed: %v", err)
					visits = nil
				}
				return marshalResult(SummarizeVisits(visits))
			}

			visits, err := store.FindUpcomingVisits(ctx, start, end)
			if err != nil {
				log.Printf("ERROR: upcoming_visits failed: %v", err)
				visits = nil
			}
			// Staff triage view caps at the 10 most imminent visits.
			if len(visits) > 10 {
				visits = visits[:10]
			}
			return marshalResult(SummarizeVisits(visits))
		})

	c.register("clinic_info",
		"Get general clinic information such as hours and services",
		noParams,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return marshalResult(clinicInfo)
		})

	return c
}

// visitRange is today through one year from today.
func visitRange() (time.Time, time.Time) {
	today := time.Now()
	return today, today.AddDate(1, 0, 0)
}

// SummarizeVisits converts repository visit projections to the
// privacy-safe summary shape.
func SummarizeVisits(visits []domain.UpcomingVisit) []domain.VisitSummary {
	summaries := make([]domain.VisitSummary, 0, len(visits))
	for _, uv := range visits {
		summaries = append(summaries, domain.VisitSummary{
			OwnerName:   uv.OwnerName,
			PetName:     uv.PetName,
			Date:        uv.Date.Format("2006-01-02"),
			Description: uv.Description,
		})
	}
	return summaries
}

func marshalResult(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
