package queue

import (
	"encoding/json"
	"fmt"
)

// PageBatch instructs a discovery worker to fetch a set of search-result
// pages for one category
type PageBatch struct {
	TransactionType string `json:"transaction_type"`
	PageNumbers     []int  `json:"page_numbers"`
}

// IdBatch instructs an extractor worker to fetch listing details for one
// category
type IdBatch struct {
	TransactionType string  `json:"transaction_type"`
	ListingIDs      []int64 `json:"listing_ids"`
}

func EncodePageBatch(batch PageBatch) ([]byte, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page batch: %w", err)
	}
	return data, nil
}

func DecodePageBatch(data []byte) (PageBatch, error) {
	var batch PageBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return PageBatch{}, fmt.Errorf("failed to decode page batch: %w", err)
	}
	if batch.TransactionType == "" {
		return PageBatch{}, fmt.Errorf("page batch missing transaction_type")
	}
	if len(batch.PageNumbers) == 0 {
		return PageBatch{}, fmt.Errorf("page batch for %s has no pages", batch.TransactionType)
	}
	return batch, nil
}

func EncodeIdBatch(batch IdBatch) ([]byte, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode id batch: %w", err)
	}
	return data, nil
}

func DecodeIdBatch(data []byte) (IdBatch, error) {
	var batch IdBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return IdBatch{}, fmt.Errorf("failed to decode id batch: %w", err)
	}
	if batch.TransactionType == "" {
		return IdBatch{}, fmt.Errorf("id batch missing transaction_type")
	}
	if len(batch.ListingIDs) == 0 {
		return IdBatch{}, fmt.Errorf("id batch for %s has no ids", batch.TransactionType)
	}
	return batch, nil
}
