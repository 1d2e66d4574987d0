package helpers

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/microcosm-cc/bluemonday"
)

const (
	CoversFolder = "hiver/covers"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup from user text and trims surrounding space.
// Entities the policy escapes are turned back into plain characters.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// StringTrim returns nil for blank input, otherwise a pointer to the trimmed value.
func StringTrim(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func IsPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	hasNumber := regexp.MustCompile(`\d`).MatchString(password)
	hasSpecial := regexp.MustCompile(`[@$!%*?&]`).MatchString(password)
	return hasLower && hasUpper && hasNumber && hasSpecial
}

// IsDataURI reports whether s is an inline base64 image rather than a hosted URL.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, file, folder string) (string, error)
}

type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryUploader(cld *cloudinary.Cloudinary) *CloudinaryUploader {
	return &CloudinaryUploader{cld: cld}
}

func (u *CloudinaryUploader) Upload(ctx context.Context, file, folder string) (string, error) {
	urls, err := UploadImages(ctx, u.cld, []string{file}, folder)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("no image uploaded")
	}
	return urls[0], nil
}

// UploadImages uploads each non-blank file (path, URL or data URI) into folder.
func UploadImages(ctx context.Context, cld *cloudinary.Cloudinary, files []string, folder string) ([]string, error) {
	if cld == nil {
		return nil, fmt.Errorf("cloudinary is not configured")
	}
	var urls []string
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		res, err := cld.Upload.Upload(ctx, file, uploader.UploadParams{
			Folder: folder,
			Tags:   []string{"hiver"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload image: %v", err)
		}
		if res.Error.Message != "" {
			return nil, fmt.Errorf("failed to upload image: %s", res.Error.Message)
		}
		urls = append(urls, res.SecureURL)
	}
	return urls, nil
}
