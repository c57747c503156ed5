// Package template stores ObjectTemplate records used to stamp out Objects with preset
// property values.
package template

// PropertyPreset is one preset value; Value is loosely typed as decoded by the backend
type PropertyPreset struct {
	Name  string      `yaml:"name" bson:"name" msgpack:"name"`
	Value interface{} `yaml:"value" bson:"value" msgpack:"value"`
}

// ComponentTemplate is the blueprint of one Component
type ComponentTemplate struct {
	Type       string           `yaml:"type" bson:"type" msgpack:"type"`
	Name       string           `yaml:"name" bson:"name" msgpack:"name"`
	Properties []PropertyPreset `yaml:"properties" bson:"properties" msgpack:"properties"`
}

// ObjectTemplate is the blueprint of one Object and its Components
type ObjectTemplate struct {
	Name       string              `yaml:"name" bson:"name" msgpack:"name"`
	Properties []PropertyPreset    `yaml:"properties" bson:"properties" msgpack:"properties"`
	Components []ComponentTemplate `yaml:"components" bson:"components" msgpack:"components"`
}

// Component returns the component template by name
func (t *ObjectTemplate) Component(name string) *ComponentTemplate {
	for i := range t.Components {
		if t.Components[i].Name == name {
			return &t.Components[i]
		}
	}
	return nil
}

// Property returns the preset value of a property
func Property(presets []PropertyPreset, name string) (interface{}, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}
