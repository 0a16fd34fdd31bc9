package mapping

import (
	"strings"
)

// TagName is the struct tag read when registering types.
const TagName = "gedm"

type tagOptions struct {
	key           string
	id            bool
	version       bool
	index         bool
	fetch         FetchStrategy
	cascade       string
	validate      string
	mappedBy      string
	owning        bool
	belongsTo     bool
	hasOne        bool
	required      bool
	orphanRemoval bool
	embedded      bool
	tenant        bool
}

// parseTag reads a tag in the form "key,opt,opt=value". Cascade tokens are
// separated by "|" since "," splits options.
func parseTag(tag string) tagOptions {
	var opts tagOptions
	segments := strings.Split(tag, ",")
	opts.key = strings.TrimSpace(segments[0])
	for _, seg := range segments[1:] {
		name, value, _ := strings.Cut(strings.TrimSpace(seg), "=")
		switch name {
		case "id":
			opts.id = true
		case "version":
			opts.version = true
		case "index":
			opts.index = true
		case "lazy":
			opts.fetch = FetchLazy
		case "eager":
			opts.fetch = FetchEager
		case "cascade":
			opts.cascade = strings.ReplaceAll(value, "|", ",")
		case "validate":
			opts.validate = value
		case "mappedBy":
			opts.mappedBy = value
		case "owning":
			opts.owning = true
		case "belongsTo":
			opts.belongsTo = true
		case "hasOne":
			opts.hasOne = true
		case "required":
			opts.required = true
		case "orphanRemoval":
			opts.orphanRemoval = true
		case "embedded":
			opts.embedded = true
		case "tenant":
			opts.tenant = true
		}
	}
	return opts
}

func (t tagOptions) propertyMapping() PropertyMapping {
	return PropertyMapping{
		Key:             t.key,
		Index:           t.index,
		Fetch:           t.fetch,
		Cascade:         t.cascade,
		CascadeValidate: t.validate,
		OrphanRemoval:   t.orphanRemoval,
		Required:        t.required,
	}
}
