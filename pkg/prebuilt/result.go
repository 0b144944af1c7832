package prebuilt

import "time"

// ClaimResult is the aggregated document produced by the completion
// aggregator.
type ClaimResult struct {
	Status             string         `json:"status" msgpack:"status"`
	CaseID             string         `json:"case_id" msgpack:"case_id"`
	Timestamp          time.Time      `json:"timestamp" msgpack:"timestamp"`
	PatientSummary     PatientSummary `json:"patient_summary" msgpack:"patient_summary"`
	Financials         Financials     `json:"financials" msgpack:"financials"`
	AnalysisFlags      AnalysisFlags  `json:"analysis_flags" msgpack:"analysis_flags"`
	DocumentsProcessed int            `json:"documents_processed" msgpack:"documents_processed"`
}

type PatientSummary struct {
	PatientID     string `json:"patient_id" msgpack:"patient_id"`
	Name          string `json:"name" msgpack:"name"`
	PolicyNo      string `json:"policy_no" msgpack:"policy_no"`
	AdmissionDate string `json:"admission_date" msgpack:"admission_date"`
	DischargeDate string `json:"discharge_date" msgpack:"discharge_date"`
	Diagnosis     string `json:"diagnosis" msgpack:"diagnosis"`
}

// Financials amounts are in whole rupees.
type Financials struct {
	TotalClaimed  int         `json:"total_claimed" msgpack:"total_claimed"`
	NMEDeductions int         `json:"nme_deductions" msgpack:"nme_deductions"`
	PayableAmount int         `json:"payable_amount" msgpack:"payable_amount"`
	BankDetails   BankDetails `json:"bank_details" msgpack:"bank_details"`
}

type BankDetails struct {
	AccountNo string `json:"account_no" msgpack:"account_no"`
	IFSC      string `json:"ifsc" msgpack:"ifsc"`
}

type AnalysisFlags struct {
	DuplicatesDetected  bool `json:"duplicates_detected" msgpack:"duplicates_detected"`
	DuplicateCount      int  `json:"duplicate_count" msgpack:"duplicate_count"`
	PolicyLimitBreached bool `json:"policy_limit_breached" msgpack:"policy_limit_breached"`
}

// NewClaimResult returns the sample claim outcome stamped with now.
func NewClaimResult(now time.Time) *ClaimResult {
	return &ClaimResult{
		Status:    "SUCCESS",
		CaseID:    "CASE-2025-10-12-A7B2",
		Timestamp: now.UTC(),
		PatientSummary: PatientSummary{
			PatientID:     "P-98765",
			Name:          "John Doe",
			PolicyNo:      "POL123456",
			AdmissionDate: "2025-10-08",
			DischargeDate: "2025-10-12",
			Diagnosis:     "Acute Appendicitis",
		},
		Financials: Financials{
			TotalClaimed:  45000,
			NMEDeductions: 1000,
			PayableAmount: 44000,
			BankDetails: BankDetails{
				AccountNo: "XXXX-XXXX-3210",
				IFSC:      "HDFC0001234",
			},
		},
		AnalysisFlags: AnalysisFlags{
			DuplicatesDetected: true,
			DuplicateCount:     1,
		},
		DocumentsProcessed: 5,
	}
}
