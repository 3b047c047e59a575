package component

// Configurable is implemented by every component that declares properties.
type Configurable interface {
	PropertyDescriptors() []*PropertyDescriptor
}

// PropertyResolver resolves configured property values.
type PropertyResolver interface {
	GetPropertyValue(name string) *PropertyValue
	Properties() []Property
}

// ServiceLookup resolves controller services by identifier. A false result
// means the service is not configured or could not be initialized.
type ServiceLookup interface {
	GetControllerService(identifier string) (ControllerService, bool)
}

// Validatable reports configuration problems.
type Validatable interface {
	Validate() []ValidationResult
	IsValid() bool
}

// InitializationContext is handed to a controller service's one-time
// Initialize hook. It carries the service's own configuration and a lookup
// for the services it depends on.
type InitializationContext interface {
	PropertyResolver
	ServiceLookup
	Identifier() string
}

// ControllerService is a pluggable, identifier-addressed backend shared by
// processors. Initialize is called at most once per identifier.
type ControllerService interface {
	Configurable
	Initialize(ctx InitializationContext) error
}

// DynamicPropertySupporter is implemented by components that accept
// user-defined property names.
type DynamicPropertySupporter interface {
	DynamicPropertyDescriptor(name string) *PropertyDescriptor
}

// PropertyModifiedListener is notified after an accepted property change.
// oldValue or newValue is "" when the property was unset.
type PropertyModifiedListener interface {
	OnPropertyModified(descriptor *PropertyDescriptor, oldValue, newValue string)
}

type emptyLookup struct{}

func (emptyLookup) GetControllerService(string) (ControllerService, bool) { return nil, false }

// NoServices is a ServiceLookup with nothing configured.
var NoServices ServiceLookup = emptyLookup{}
