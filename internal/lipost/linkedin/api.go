package linkedin

// MediaCategory is the shareMediaCategory of a UGC post.
type MediaCategory string

const (
	CategoryNone  MediaCategory = "NONE"
	CategoryImage MediaCategory = "IMAGE"
	CategoryVideo MediaCategory = "VIDEO"
)

const (
	RecipeFeedImage = "urn:li:digitalmediaRecipe:feedshare-image"
	RecipeFeedVideo = "urn:li:digitalmediaRecipe:feedshare-video"

	uploadMechanismKey = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

// Asset processing states reported by /v2/assets.
const (
	AssetAvailable  = "AVAILABLE"
	AssetError      = "ERROR"
	AssetProcessing = "PROCESSING"
)

// UserInfo is the OpenID Connect userinfo document.
type UserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

type localizedString struct {
	Localized map[string]string `json:"localized"`
}

func (l localizedString) first() string {
	for _, v := range l.Localized {
		return v
	}
	return ""
}

type meResponse struct {
	ID             string          `json:"id"`
	VanityName     string          `json:"vanityName"`
	FirstName      localizedString `json:"firstName"`
	LastName       localizedString `json:"lastName"`
	ProfilePicture struct {
		DisplayImage struct {
			Elements []struct {
				Identifiers []struct {
					Identifier string `json:"identifier"`
				} `json:"identifiers"`
			} `json:"elements"`
		} `json:"displayImage~"`
	} `json:"profilePicture"`
}

func (m *meResponse) picture() string {
	for _, elem := range m.ProfilePicture.DisplayImage.Elements {
		if len(elem.Identifiers) > 0 {
			return elem.Identifiers[0].Identifier
		}
	}
	return ""
}

// Profile is the merged member profile shown to the operator.
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Picture    string `json:"picture,omitempty"`
	VanityName string `json:"vanity_name,omitempty"`
}

// URN returns the author URN for the profile.
func (p *Profile) URN() string {
	if p == nil || p.ID == "" {
		return ""
	}
	return PersonURN(p.ID)
}

// URL returns the public profile URL.
func (p *Profile) URL() string {
	if p == nil {
		return ProfileURL("", "")
	}
	return ProfileURL(p.URN(), p.VanityName)
}

// ServiceRelationship ties an uploaded asset to its owner.
type ServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

// RegisterUploadRequest is the body of assets?action=registerUpload.
type RegisterUploadRequest struct {
	Recipes                  []string              `json:"recipes"`
	Owner                    string                `json:"owner"`
	ServiceRelationships     []ServiceRelationship `json:"serviceRelationships"`
	SupportedUploadMechanism []string              `json:"supportedUploadMechanism,omitempty"`
	FileSize                 int64                 `json:"fileSize,omitempty"`
}

// NewRegisterUploadRequest builds a registration for a member-owned asset.
func NewRegisterUploadRequest(recipe, owner string) RegisterUploadRequest {
	return RegisterUploadRequest{
		Recipes: []string{recipe},
		Owner:   owner,
		ServiceRelationships: []ServiceRelationship{{
			RelationshipType: "OWNER",
			Identifier:       "urn:li:userGeneratedContent",
		}},
	}
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string `json:"uploadUrl"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// UploadTicket is the result of a successful registration.
type UploadTicket struct {
	UploadURL string
	Asset     string
}

type assetResponse struct {
	Recipes []struct {
		Recipe string `json:"recipe"`
		Status string `json:"status"`
	} `json:"recipes"`
}

// Text wraps a plain string the way the UGC API expects.
type Text struct {
	Text string `json:"text"`
}

// ShareMedia references an uploaded asset.
type ShareMedia struct {
	Status      string `json:"status"`
	Media       string `json:"media"`
	Description *Text  `json:"description,omitempty"`
}

// ShareContent is the com.linkedin.ugc.ShareContent payload.
type ShareContent struct {
	ShareCommentary    Text          `json:"shareCommentary"`
	ShareMediaCategory MediaCategory `json:"shareMediaCategory"`
	Media              []ShareMedia  `json:"media,omitempty"`
}

// SpecificContent holds the share content.
type SpecificContent struct {
	ShareContent ShareContent `json:"com.linkedin.ugc.ShareContent"`
}

// Visibility controls who can see the post.
type Visibility struct {
	MemberNetwork string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

// UGCPost is the body of POST /v2/ugcPosts.
type UGCPost struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent SpecificContent `json:"specificContent"`
	Visibility      Visibility      `json:"visibility"`
}

// NewPost builds a public, published post. asset is ignored for
// CategoryNone.
func NewPost(author, text string, category MediaCategory, asset, description string) UGCPost {
	content := ShareContent{
		ShareCommentary:    Text{Text: text},
		ShareMediaCategory: category,
	}
	if category != CategoryNone && asset != "" {
		media := ShareMedia{Status: "READY", Media: asset}
		if description != "" {
			media.Description = &Text{Text: description}
		}
		content.Media = []ShareMedia{media}
	}
	return UGCPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: SpecificContent{ShareContent: content},
		Visibility:      Visibility{MemberNetwork: "PUBLIC"},
	}
}

type createPostResponse struct {
	ID string `json:"id"`
}
