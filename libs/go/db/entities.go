package db

import "time"

// SentinelUserID is the user id soft-deleted references are rewritten
// to, so that historical rows (charges, team memberships, notification
// authorship) never dangle on a deleted account.
const SentinelUserID int64 = 0

type UserRole string

const (
	RoleDeveloper UserRole = "developer"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
)

type User struct {
	ID                    int64
	Username              string
	Email                 *string
	Role                  UserRole
	Badges                int64
	PaymentCustomerID     *string
	PayoutSettings        []byte // opaque JSON blob; payout policy is out of scope
	Deleted               bool
	Created               time.Time
}

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectProcessing ProjectStatus = "processing"
	ProjectApproved   ProjectStatus = "approved"
	ProjectRejected   ProjectStatus = "rejected"
	ProjectUnlisted   ProjectStatus = "unlisted"
	ProjectArchived   ProjectStatus = "archived"
	ProjectScheduled  ProjectStatus = "scheduled"
	ProjectPrivate    ProjectStatus = "private"
	ProjectWithheld   ProjectStatus = "withheld"
	ProjectUnknown    ProjectStatus = "unknown"
)

// ParseProjectStatus tolerates DB values added out-of-band by
// migrations: anything unrecognized parses to ProjectUnknown rather
// than erroring.
func ParseProjectStatus(s string) ProjectStatus {
	switch ProjectStatus(s) {
	case ProjectDraft, ProjectProcessing, ProjectApproved, ProjectRejected,
		ProjectUnlisted, ProjectArchived, ProjectScheduled, ProjectPrivate, ProjectWithheld:
		return ProjectStatus(s)
	default:
		return ProjectUnknown
	}
}

// IsHidden reports whether a project in this status should 404 instead
// of 401 for a viewer without visibility.
func (s ProjectStatus) IsHidden() bool {
	switch s {
	case ProjectDraft, ProjectProcessing, ProjectRejected, ProjectUnlisted,
		ProjectScheduled, ProjectPrivate, ProjectWithheld:
		return true
	default:
		return false
	}
}

type MonetizationStatus string

const (
	MonetizationMonetized    MonetizationStatus = "monetized"
	MonetizationDemonetized  MonetizationStatus = "demonetized"
	MonetizationForceDemonetized MonetizationStatus = "force-demonetized"
)

type Project struct {
	ID                int64
	Slug              *string
	TeamID            int64
	OrganizationID    *int64
	Name              string
	Summary           string
	Description       string
	Status            ProjectStatus
	RequestedStatus   *ProjectStatus
	Monetization      MonetizationStatus
	Downloads         int64
	Follows           int64
	LinkUrls          map[string]string
	Categories        []string
	AdditionalCategories []string
	LicenseID         string
	Color             *int32
	IconURL           *string
	RawIconURL        *string
	Published         time.Time
	Updated           time.Time
}

type VersionStatus string

const (
	VersionListed     VersionStatus = "listed"
	VersionArchived    VersionStatus = "archived"
	VersionDraft       VersionStatus = "draft"
	VersionScheduled   VersionStatus = "scheduled"
	VersionUnlisted    VersionStatus = "unlisted"
)

// ListedVersionStatuses is the filter the aggregate reader applies when
// it fans out for a project's versions.
var ListedVersionStatuses = []VersionStatus{VersionListed, VersionArchived, VersionUnlisted}

type DependencyType string

const (
	DependencyRequired    DependencyType = "required"
	DependencyOptional    DependencyType = "optional"
	DependencyIncompatible DependencyType = "incompatible"
	DependencyEmbedded    DependencyType = "embedded"
)

type VersionDependency struct {
	ProjectID *int64
	VersionID *int64
	FileName  *string
	DepType   DependencyType
}

type VersionFile struct {
	ID        int64
	VersionID int64
	URL       string
	Filename  string
	Primary   bool
	Sha1      string
	Sha512    string
	Size      int64
}

type Version struct {
	ID             int64
	ProjectID      int64
	Name           string
	VersionNumber  string
	Status         VersionStatus
	Channel        string
	Loaders        []string
	Dependencies   []VersionDependency
	Files          []VersionFile
	LoaderFields   map[string]interface{}
	DatePublished  time.Time
}

type GalleryItem struct {
	ID        int64
	ProjectID int64
	URL       string
	Featured  bool
	Ordering  int32
}

// Team holds the permission-carrying membership list for either a
// project or an organization — exactly one of ProjectID/OrganizationID
// is set.
type Team struct {
	ID             int64
	ProjectID      *int64
	OrganizationID *int64
}

type TeamMember struct {
	TeamID                 int64
	UserID                 int64
	Role                   string
	IsOwner                bool
	Accepted               bool
	ProjectPermissions     uint64
	OrganizationPermissions *uint64
	PayoutsSplit           float64
	Ordering               int32
}

type Organization struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	Icon        *string
	TeamID      int64
}

// ---- Billing entities ----

type ProductMetadataKind string

const (
	ProductMidas ProductMetadataKind = "midas"
	ProductPyro  ProductMetadataKind = "pyro"
	ProductMedal ProductMetadataKind = "medal"
)

// ProductMetadata is the tagged union described in spec §3/§9; exactly
// one of the embedded specs is populated, matching Kind.
type ProductMetadata struct {
	Kind ProductMetadataKind
	Pyro *ServerSpec
	Medal *MedalSpec
}

type ServerSpec struct {
	RAM     int32
	CPU     int32
	Swap    int32
	Storage int32
}

type MedalSpec struct {
	ServerSpec
	Region string
}

type Product struct {
	ID       int64
	Name     string
	Metadata ProductMetadata
	Unitary  bool
}

type PriceDuration string

const (
	DurationFiveDays PriceDuration = "five-days"
	DurationMonthly  PriceDuration = "monthly"
	DurationQuarterly PriceDuration = "quarterly"
	DurationYearly   PriceDuration = "yearly"
)

type PriceKind string

const (
	PriceOneTime   PriceKind = "one-time"
	PriceRecurring PriceKind = "recurring"
)

type Price struct {
	ID         int64
	ProductID  int64
	Currency   string
	Kind       PriceKind
	OneTime    int64
	Recurring  map[PriceDuration]int64
}

// AmountFor resolves the minor-unit amount for a given interval; for
// OneTime prices the interval argument is ignored.
func (p Price) AmountFor(interval PriceDuration) int64 {
	if p.Kind == PriceOneTime {
		return p.OneTime
	}
	return p.Recurring[interval]
}

type SubscriptionStatus string

const (
	SubscriptionProvisioned   SubscriptionStatus = "provisioned"
	SubscriptionUnprovisioned SubscriptionStatus = "unprovisioned"
	SubscriptionPendingCancel SubscriptionStatus = "pending-cancel"
)

type SubscriptionMetadataKind string

const (
	SubMetaPyro  SubscriptionMetadataKind = "pyro"
	SubMetaMedal SubscriptionMetadataKind = "medal"
)

type SubscriptionMetadata struct {
	Kind     SubscriptionMetadataKind
	ServerID string
	Region   *string // Pyro only
}

type UserSubscription struct {
	ID       int64
	UserID   int64
	PriceID  int64
	Interval PriceDuration
	Created  time.Time
	Status   SubscriptionStatus
	Metadata *SubscriptionMetadata
}

type ChargeStatus string

const (
	ChargeOpen       ChargeStatus = "open"
	ChargeProcessing ChargeStatus = "processing"
	ChargeSucceeded  ChargeStatus = "succeeded"
	ChargeFailed     ChargeStatus = "failed"
	ChargeCancelled  ChargeStatus = "cancelled"
	ChargeExpiring   ChargeStatus = "expiring"
)

type ChargeType string

const (
	ChargeOneTime     ChargeType = "one-time"
	ChargeSubscription ChargeType = "subscription"
	ChargeProration   ChargeType = "proration"
	ChargeRefund      ChargeType = "refund"
)

type PaymentPlatform string

const (
	PlatformStripe PaymentPlatform = "stripe"
	PlatformNone   PaymentPlatform = ""
)

type Charge struct {
	ID                       int64
	UserID                   int64
	PriceID                  int64
	Amount                   int64 // minor units, signed
	TaxAmount                int64
	CurrencyCode             string
	Status                   ChargeStatus
	Due                      time.Time
	LastAttempt              *time.Time
	Type                     ChargeType
	SubscriptionID           *int64
	SubscriptionInterval     *PriceDuration
	PaymentPlatform          PaymentPlatform
	PaymentPlatformID        *string
	ParentChargeID           *int64
	Net                      *int64
	TaxPlatformID            *string
	TaxTransactionVersion    *int32
	TaxPlatformAccountingTime *time.Time
	TaxLastUpdated           *time.Time
}

// ---- Notifications ----

type NotificationChannel string

const (
	ChannelSite  NotificationChannel = "site"
	ChannelEmail NotificationChannel = "email"
)

type NotificationBodyKind string

const (
	NotifyProjectUpdate       NotificationBodyKind = "project_update"
	NotifyTeamInvite          NotificationBodyKind = "team_invite"
	NotifyOrganizationInvite  NotificationBodyKind = "organization_invite"
	NotifyStatusChange        NotificationBodyKind = "status_change"
	NotifyModeratorMessage    NotificationBodyKind = "moderator_message"
	NotifyPaymentFailed       NotificationBodyKind = "payment_failed"
	NotifyTaxNotification     NotificationBodyKind = "tax_notification"
	NotifySubscriptionCredited NotificationBodyKind = "subscription_credited"
)

type NotificationBody struct {
	Kind    NotificationBodyKind
	Fields  map[string]interface{}
}

type Notification struct {
	ID      int64
	UserID  int64
	Body    NotificationBody
	Created time.Time
	Read    bool
}

type DeliveryStatus string

const (
	DeliveryPending           DeliveryStatus = "pending"
	DeliveryDelivered         DeliveryStatus = "delivered"
	DeliveryPermanentlyFailed DeliveryStatus = "permanently_failed"
	DeliverySkippedPreferences DeliveryStatus = "skipped_preferences"
	DeliverySkippedDefault    DeliveryStatus = "skipped_default"
)

type NotificationDelivery struct {
	NotificationID int64
	Channel        NotificationChannel
	Status         DeliveryStatus
	AttemptCount   int32
	NextAttempt    time.Time
}

// ---- Shared instances ----

type SharedInstanceVersion struct {
	VersionID int64
}

type SharedInstanceOverride struct {
	InstallPath string
	Sha1        string
	Sha512      string
	FileURL     string
}

type SharedInstance struct {
	ID            int64
	OwnerUserID   int64
	Name          string
	Loader        string
	LoaderVersion string
	GameVersion   string
	Icon          *string
	Versions      []SharedInstanceVersion
	Overrides     []SharedInstanceOverride
	SharedWith    []int64
}
