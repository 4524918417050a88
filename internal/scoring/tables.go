package scoring

import "strings"

// Source is a recognized traffic source.
type Source string

const (
	SourceLinkedIn  Source = "linkedin"
	SourceGoogle    Source = "google"
	SourceFacebook  Source = "facebook"
	SourceInstagram Source = "instagram"
	SourceTelegram  Source = "telegram"
	SourceEmail     Source = "email"
	SourceReferral  Source = "referral"
	SourceDirect    Source = "direct"
)

// Medium is a recognized traffic medium. MediumNone covers everything unlisted.
type Medium string

const (
	MediumCPC        Medium = "cpc"
	MediumNewsletter Medium = "newsletter"
	MediumDM         Medium = "dm"
	MediumPost       Medium = "post"
	MediumBio        Medium = "bio"
	MediumStory      Medium = "story"
	MediumOrganic    Medium = "organic"
	MediumReferral   Medium = "referral"
	MediumNone       Medium = ""
)

// Service is a lead's requested service.
type Service string

const (
	ServiceBranding     Service = "branding"
	ServiceAdvertising  Service = "advertising"
	ServiceSEO          Service = "seo"
	ServiceSMM          Service = "smm"
	ServiceConsultation Service = "consultation"
	ServiceOther        Service = "other"
)

// Bonus points.
const (
	BonusPhone           = 15
	BonusMessage         = 10
	BonusLongMessage     = 5
	BonusVisitedServices = 5
	BonusVisitedCases    = 10
	BonusReadBlog        = 3
	BonusReturningUser   = 8

	LongMessageThreshold = 100
)

// Label thresholds.
const (
	HotThreshold  = 70
	WarmThreshold = 40

	DefaultCRMThreshold = 40
)

// Sources lists every named source, in table order.
var Sources = []Source{SourceLinkedIn, SourceGoogle, SourceFacebook, SourceInstagram, SourceTelegram, SourceEmail, SourceReferral, SourceDirect}

// Mediums lists every named medium, in table order.
var Mediums = []Medium{MediumCPC, MediumNewsletter, MediumDM, MediumPost, MediumBio, MediumStory, MediumOrganic, MediumReferral}

// Services lists every named service, in table order.
var Services = []Service{ServiceBranding, ServiceAdvertising, ServiceSEO, ServiceSMM, ServiceConsultation, ServiceOther}

// ParseSource maps free text onto a Source; unknown values become direct.
func ParseSource(raw string) Source {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Sources {
		if s == known {
			return s
		}
	}
	return SourceDirect
}

// ParseMedium maps free text onto a Medium; unknown values become MediumNone.
func ParseMedium(raw string) Medium {
	m := Medium(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Mediums {
		if m == known {
			return m
		}
	}
	return MediumNone
}

// ParseService maps free text onto a Service; unknown values become other.
func ParseService(raw string) Service {
	s := Service(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Services {
		if s == known {
			return s
		}
	}
	return ServiceOther
}

// Points returns the weight of the source.
func (s Source) Points() int {
	switch s {
	case SourceLinkedIn:
		return 20
	case SourceGoogle:
		return 15
	case SourceFacebook:
		return 12
	case SourceInstagram:
		return 10
	case SourceTelegram:
		return 10
	case SourceEmail:
		return 18
	case SourceReferral:
		return 15
	default:
		return 5
	}
}

// Points returns the weight of the medium.
func (m Medium) Points() int {
	switch m {
	case MediumCPC:
		return 15
	case MediumNewsletter:
		return 12
	case MediumDM:
		return 10
	case MediumPost:
		return 8
	case MediumBio:
		return 6
	case MediumStory:
		return 6
	case MediumOrganic:
		return 10
	case MediumReferral:
		return 8
	default:
		return 0
	}
}

// Points returns the weight of the service.
func (s Service) Points() int {
	switch s {
	case ServiceBranding:
		return 25
	case ServiceAdvertising:
		return 20
	case ServiceSEO:
		return 18
	case ServiceSMM:
		return 15
	case ServiceConsultation:
		return 10
	default:
		return 5
	}
}
