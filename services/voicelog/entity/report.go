package entity

import (
	"errors"
	"fmt"
	"strings"
)

var ErrFacingSheetParse = errors.New("facing sheet could not be extracted")

type FacingSheetField struct {
	Key   string
	Label string
}

// FacingSheetFields is the fixed schema requested from the generation service,
// in render order.
var FacingSheetFields = []FacingSheetField{
	{Key: "name", Label: "氏名"},
	{Key: "age", Label: "年齢"},
	{Key: "gender", Label: "性別"},
	{Key: "address", Label: "住所"},
	{Key: "phone", Label: "連絡先"},
	{Key: "family", Label: "家族構成"},
	{Key: "consultation", Label: "相談内容"},
	{Key: "current_situation", Label: "現在の状況"},
	{Key: "support_needs", Label: "必要な支援"},
	{Key: "notes", Label: "備考"},
}

type (
	FacingSheetItem struct {
		Key   string
		Label string
		Value string
	}

	FacingSheet struct {
		Recording RecordingView
		Items     []FacingSheetItem
		Raw       string
	}

	// FacingSheetError carries the raw generation output when extraction fails.
	FacingSheetError struct {
		Recording RecordingView
		Raw       string
		Err       error
	}

	SupportLogRequest struct {
		CaseHandler string
		Author      string
	}

	SupportLog struct {
		CaseHandler string
		Author      string
		Recordings  []*RecordingView
	}
)

func (e *FacingSheetError) Error() string {
	return "facing sheet extraction failed: " + e.Err.Error()
}

func (e *FacingSheetError) Unwrap() error {
	return ErrFacingSheetParse
}

// Normalize trims both names and fails with ErrInvalidInput when either is
// blank.
func (r *SupportLogRequest) Normalize() error {
	r.CaseHandler = strings.TrimSpace(r.CaseHandler)
	r.Author = strings.TrimSpace(r.Author)
	if r.CaseHandler == "" || r.Author == "" {
		return fmt.Errorf("%w: case handler and author are required", ErrInvalidInput)
	}
	return nil
}
