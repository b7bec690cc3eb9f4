// Package resources holds the building-block context, the resource ID
// builder and the propagation of subscription, resource group and location
// through nested settings.
package resources

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Settings field names carrying resource placement.
const (
	FieldSubscriptionID    = "subscriptionId"
	FieldResourceGroupName = "resourceGroupName"
	FieldLocation          = "location"
)

// MaxResourceGroupNameLength is the maximum length of a resource group name.
const MaxResourceGroupNameLength = 90

// Errors.
var (
	ErrMissingSubscriptionID     = errors.New("subscriptionId cannot be undefined, null, empty, or only whitespace")
	ErrInvalidSubscriptionID     = errors.New("subscriptionId must be a valid GUID")
	ErrMissingResourceGroupName  = errors.New("resourceGroupName cannot be undefined, null, empty, or only whitespace")
	ErrInvalidResourceGroupName  = errors.New("resourceGroupName is not a valid resource group name")
	ErrInvalidLocation           = errors.New("location must be a valid Azure region")
	ErrMissingResourceType       = errors.New("resourceType cannot be undefined, null, empty, or only whitespace")
	ErrInvalidResourceType       = errors.New("resourceType must have two or three segments")
	ErrMissingResourceName       = errors.New("resourceName cannot be undefined, null, empty, or only whitespace")
	ErrUnexpectedSubresourceName = errors.New("subresourceName cannot be specified for a resource type with two segments")
	ErrMissingSubresourceName    = errors.New("subresourceName cannot be undefined, null, empty, or only whitespace")
	ErrUnknownCloud              = errors.New("unknown cloud")
)

var (
	guidPattern          = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	locationPattern      = regexp.MustCompile(`^[a-z]{2,}[a-z0-9]*$`)
	resourceGroupPattern = regexp.MustCompile(`^[-\w._()]+$`)
)

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("guid", func(fl validator.FieldLevel) bool {
		return guidPattern.MatchString(strings.ToLower(fl.Field().String()))
	})
	_ = validate.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		return locationPattern.MatchString(strings.ToLower(fl.Field().String()))
	})
	_ = validate.RegisterValidation("rgname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return resourceGroupPattern.MatchString(name) && !strings.HasSuffix(name, ".")
	})
}

// Context is the building-block context: the ambient placement every
// resource inherits unless it overrides it.
type Context struct {
	SubscriptionID    string `json:"subscriptionId" validate:"required,guid"`
	ResourceGroupName string `json:"resourceGroupName" validate:"required,max=90,rgname"`
	Location          string `json:"location" validate:"omitempty,location"`
	Cloud             Cloud  `json:"-" validate:"-"`
	SASToken          string `json:"-" validate:"-"`
}

// Validate checks the subscription, resource group and location of the context.
func (c Context) Validate() error {
	var errs []error

	if strings.TrimSpace(c.SubscriptionID) == "" {
		errs = append(errs, ErrMissingSubscriptionID)
	}
	if strings.TrimSpace(c.ResourceGroupName) == "" {
		errs = append(errs, ErrMissingResourceGroupName)
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			if fe.Tag() == "required" {
				continue
			}
			switch fe.Field() {
			case "SubscriptionID":
				errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidSubscriptionID, c.SubscriptionID))
			case "ResourceGroupName":
				errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidResourceGroupName, c.ResourceGroupName))
			case "Location":
				errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidLocation, c.Location))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StorageCloud returns the context cloud, defaulting to the public cloud.
func (c Context) StorageCloud() Cloud {
	if c.Cloud.Name == "" {
		return DefaultCloud()
	}
	return c.Cloud
}

// Placement returns the placement fields of the context.
func (c Context) Placement() ResourceGroup {
	return ResourceGroup{
		SubscriptionID:    c.SubscriptionID,
		ResourceGroupName: c.ResourceGroupName,
		Location:          c.Location,
	}
}
