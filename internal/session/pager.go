package session

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// maxPageIterations caps a paged walk so a server that keeps growing its
// reported pageCount cannot loop forever. The count is re-read from every
// page and is assumed, not guaranteed, to be stable across fetches.
const maxPageIterations = 1000

// Page query and response field names of the list-endpoint contract.
const (
	pageNumberParam = "pageNumber"
	pageCountField  = "pageCount"
)

// ContractError indicates a list response missing a field the pagination
// contract requires. The sequencer does not recover from it.
type ContractError struct {
	Field string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("pagination contract violation: response is missing %q", e.Field)
}

// Paged turns a page-based list endpoint into a lazy, single-pass sequence
// of items from the response's itemsKey collection. Each page is fetched
// on demand through the full request stack, so retry and telemetry
// semantics apply per page. The sequence is not restartable; call Paged
// again to iterate from page one.
func (s *Session) Paged(ctx context.Context, r Request, itemsKey string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		pageNumber, pageCount := 1, 1

		for iteration := 0; pageNumber <= pageCount; iteration++ {
			if iteration >= maxPageIterations {
				yield(nil, fmt.Errorf("pagination limit exceeded (%d pages)", maxPageIterations))
				return
			}

			pageReq := r
			pageReq.Params = make(map[string]any, len(r.Params)+1)
			for key, value := range r.Params {
				pageReq.Params[key] = value
			}
			pageReq.Params[pageNumberParam] = pageNumber

			raw, err := s.Do(ctx, pageReq)
			if err != nil {
				yield(nil, err)
				return
			}
			if raw == nil {
				// Dry-run produces no pages.
				return
			}

			items, total, err := decodePage(raw, itemsKey)
			if err != nil {
				yield(nil, err)
				return
			}
			pageCount = total

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			pageNumber++
		}
	}
}

func decodePage(raw json.RawMessage, itemsKey string) ([]json.RawMessage, int, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, 0, fmt.Errorf("failed to decode page: %w", err)
	}

	countRaw, ok := envelope[pageCountField]
	if !ok {
		return nil, 0, &ContractError{Field: pageCountField}
	}
	var pageCount int
	if err := json.Unmarshal(countRaw, &pageCount); err != nil {
		return nil, 0, &ContractError{Field: pageCountField}
	}

	itemsRaw, ok := envelope[itemsKey]
	if !ok {
		return nil, 0, &ContractError{Field: itemsKey}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(itemsRaw, &items); err != nil {
		return nil, 0, fmt.Errorf("failed to decode %q collection: %w", itemsKey, err)
	}
	return items, pageCount, nil
}
