package models

import (
	"time"

	"github.com/google/uuid"
)

// Analysis lifecycle statuses shared by acceptance analyses and report
// artifacts
const (
	AnalysisStatusPending   = "pending"
	AnalysisStatusAnalyzing = "analyzing"
	AnalysisStatusCompleted = "completed"
	AnalysisStatusFailed    = "failed"
)

// Result statuses of an acceptance analysis
const (
	ResultStatusPassed         = "passed"
	ResultStatusNeedRectify    = "need_rectify"
	ResultStatusFailed         = "failed"
	ResultStatusPendingRecheck = "pending_recheck"
	ResultStatusCompleted      = "completed"
)

// Severity levels
const (
	SeverityHigh    = "high"
	SeverityMid     = "mid"
	SeverityLow     = "low"
	SeverityWarning = "warning"
	SeverityNone    = "none"
)

// Unlock types
const (
	UnlockTypeSingle    = "single"
	UnlockTypePackage   = "package"
	UnlockTypeFirstFree = "first_free"
	UnlockTypeMember    = "member"
	UnlockTypeCached    = "cached"
)

// Report artifact types
const (
	ArtifactTypeQuote       = "quote"
	ArtifactTypeContract    = "contract"
	ArtifactTypeCompanyScan = "company_scan"
)

// Order types
const (
	OrderTypeReportSingle       = "report_single"
	OrderTypeReportPackage      = "report_package"
	OrderTypeSupervisionSingle  = "supervision_single"
	OrderTypeSupervisionPackage = "supervision_package"
	OrderTypeMemberMonth        = "member_month"
	OrderTypeMemberSeason       = "member_season"
	OrderTypeMemberYear         = "member_year"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Refund statuses
const (
	RefundStatusPending  = "pending"
	RefundStatusApproved = "approved"
	RefundStatusRejected = "rejected"
)

// Message categories
const (
	MessageCategorySystem          = "system"
	MessageCategoryProgress        = "progress"
	MessageCategoryReport          = "report"
	MessageCategoryAcceptance      = "acceptance"
	MessageCategoryCustomerService = "customer_service"
	MessageCategoryPayment         = "payment"
)

// Material categories
const (
	MaterialCategoryKey       = "关键材料"
	MaterialCategoryAuxiliary = "辅助材料"
)

// Material check results
const (
	CheckResultPass = "pass"
	CheckResultFail = "fail"
)

// User is created on the first authenticated request and updated by profile
// changes and entitlement grants
type User struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	ExternalIdentity string     `json:"external_identity" gorm:"uniqueIndex;not null"`
	IsMember         bool       `json:"is_member" gorm:"default:false"`
	MemberExpiresAt  *time.Time `json:"member_expires_at"`
	CityCode         string     `json:"city_code"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ActiveMember reports whether the user holds a non-expired membership
func (u *User) ActiveMember(now time.Time) bool {
	return u.IsMember && u.MemberExpiresAt != nil && u.MemberExpiresAt.After(now)
}

// Construction is the per-user aggregate of the six-stage pipeline.
// Stages is a JSONB stage map mutated only under the per-user row lock.
type Construction struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID           uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	StartDate        *time.Time `json:"start_date" gorm:"type:date"`
	EstimatedEndDate *time.Time `json:"estimated_end_date" gorm:"type:date"`
	ActualEndDate    *time.Time `json:"actual_end_date" gorm:"type:date"`
	ProgressPercent  int        `json:"progress_percent" gorm:"default:0"`
	Stages           JSONB      `json:"stages" gorm:"type:jsonb;default:'{}'"`
	IsDelayed        bool       `json:"is_delayed" gorm:"default:false"`
	DelayDays        int        `json:"delay_days" gorm:"default:0"`
	Notes            string     `json:"notes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// MaterialCheck records one physical inspection of delivered materials.
// Immutable once written; a newer check supersedes older ones for display.
type MaterialCheck struct {
	ID          uuid.UUID           `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID      uuid.UUID           `json:"user_id" gorm:"type:uuid;index;not null"`
	QuoteID     *uuid.UUID          `json:"quote_id" gorm:"type:uuid"`
	Result      string              `json:"result" gorm:"not null" validate:"oneof=pass fail"`
	ProblemNote string              `json:"problem_note"`
	SubmittedAt time.Time           `json:"submitted_at"`
	CreatedAt   time.Time           `json:"created_at"`
	Items       []MaterialCheckItem `json:"items,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// MaterialCheckItem is one inspected material line
type MaterialCheckItem struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	MaterialCheckID uuid.UUID `json:"material_check_id" gorm:"type:uuid;index;not null"`
	MaterialName    string    `json:"material_name" gorm:"not null"`
	SpecBrand       string    `json:"spec_brand"`
	Quantity        string    `json:"quantity"`
	Category        string    `json:"category"`
	PhotoURLs       JSONB     `json:"photo_urls" gorm:"type:jsonb;default:'[]'"`
	DocInvoiceURL   string    `json:"doc_invoice_url"`
	DocReportURL    string    `json:"doc_report_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// AcceptanceAnalysis is the AI-assisted inspection record for one stage
// submission
type AcceptanceAnalysis struct {
	ID                 uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID             uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	Stage              string     `json:"stage" gorm:"not null;index"`
	FileURLs           JSONB      `json:"file_urls" gorm:"type:jsonb;default:'[]'"`
	ResultJSON         JSONB      `json:"result_json" gorm:"type:jsonb"`
	Issues             JSONB      `json:"issues" gorm:"type:jsonb"`
	Suggestions        JSONB      `json:"suggestions" gorm:"type:jsonb"`
	Severity           string     `json:"severity" gorm:"default:'none'"`
	Status             string     `json:"status" gorm:"default:'analyzing';index"`
	ResultStatus       string     `json:"result_status"`
	RecheckCount       int        `json:"recheck_count" gorm:"default:0"`
	RectifiedAt        *time.Time `json:"rectified_at"`
	RectifiedPhotoURLs JSONB      `json:"rectified_photo_urls" gorm:"type:jsonb"`
	IsUnlocked         bool       `json:"is_unlocked" gorm:"default:false"`
	UnlockType         string     `json:"unlock_type"`
	DeletedAt          *time.Time `json:"deleted_at" gorm:"index"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ReportArtifact is a quote, contract or company scan. All three share the
// created → analyzing → (completed|failed) lifecycle, the unlock flags and
// the analysis progress document, so they live in one table keyed by type.
type ReportArtifact struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	ArtifactType     string    `json:"artifact_type" gorm:"not null;index" validate:"oneof=quote contract company_scan"`
	FileURL          string    `json:"file_url"`
	CompanyName      string    `json:"company_name"`
	OCRText          string    `json:"ocr_text" gorm:"type:text"`
	ResultJSON       JSONB     `json:"result_json" gorm:"type:jsonb"`
	RiskScore        int       `json:"risk_score" gorm:"default:0"`
	RiskLevel        string    `json:"risk_level"`
	LineItems        JSONB     `json:"line_items" gorm:"type:jsonb"`
	LegalRisks       JSONB     `json:"legal_risks" gorm:"type:jsonb"`
	TotalAmount      int64     `json:"total_amount" gorm:"default:0"`
	Status           string    `json:"status" gorm:"default:'pending';index"`
	AnalysisProgress JSONB     `json:"analysis_progress" gorm:"type:jsonb"`
	IsUnlocked       bool      `json:"is_unlocked" gorm:"default:false"`
	UnlockType       string    `json:"unlock_type"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConstructionPhoto is written as a side effect of any photo landing in an
// acceptance submission or material check
type ConstructionPhoto struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	Stage     string     `json:"stage" gorm:"index"`
	FileURL   string     `json:"file_url" gorm:"not null"`
	DeletedAt *time.Time `json:"deleted_at" gorm:"index"`
	CreatedAt time.Time  `json:"created_at"`
}

// Order grants entitlements on its pending → paid transition
type Order struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OrderNo       string     `json:"order_no" gorm:"uniqueIndex;not null"`
	UserID        uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	OrderType     string     `json:"order_type" gorm:"not null"`
	ResourceType  string     `json:"resource_type"`
	ResourceID    *uuid.UUID `json:"resource_id" gorm:"type:uuid"`
	Amount        int64      `json:"amount" gorm:"not null"`
	Status        string     `json:"status" gorm:"default:'pending';index"`
	PaidAt        *time.Time `json:"paid_at"`
	TransactionID string     `json:"transaction_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Refund is a user's refund application; at most one per paid order
type Refund struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	OrderID   uuid.UUID `json:"order_id" gorm:"type:uuid;uniqueIndex;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Reason    string    `json:"reason" gorm:"not null"`
	Note      string    `json:"note"`
	Status    string    `json:"status" gorm:"default:'pending'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSetting holds per-user reminder and notification preferences
type UserSetting struct {
	ID                    uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID                uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	ReminderDaysBefore    int       `json:"reminder_days_before" gorm:"default:3"`
	NotifyProgress        bool      `json:"notify_progress" gorm:"default:true"`
	NotifyAcceptance      bool      `json:"notify_acceptance" gorm:"default:true"`
	NotifySystem          bool      `json:"notify_system" gorm:"default:true"`
	StorageDurationMonths int       `json:"storage_duration_months" gorm:"default:12"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Message is a user-visible message-center entry
type Message struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Category  string    `json:"category" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content" gorm:"type:text"`
	Summary   string    `json:"summary"`
	LinkURL   string    `json:"link_url"`
	IsRead    bool      `json:"is_read" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
}
