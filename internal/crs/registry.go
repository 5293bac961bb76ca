package crs

import (
	"sort"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodprep/internal/geometry"
)

type transformKey struct {
	src, dst string
}

// Registry maps EPSG codes to proj4 definitions and caches parsed spatial
// references and transformers. It is safe for concurrent use.
type Registry struct {
	defs map[string]string

	mu    sync.Mutex
	srs   map[string]*proj.SR
	trans map[transformKey]proj.Transformer
}

// NewRegistry returns a registry holding the built-in definitions plus extra,
// keyed by EPSG code. Extra definitions override built-ins.
func NewRegistry(extra map[string]string) (*Registry, error) {
	defs := make(map[string]string, len(builtin)+len(extra))
	for k, v := range builtin {
		defs[k] = v
	}
	for k, v := range extra {
		code, err := Normalize(k)
		if err != nil {
			return nil, eris.Wrapf(err, "crs: extra definition %q", k)
		}
		defs[code] = v
	}
	return &Registry{
		defs:  defs,
		srs:   make(map[string]*proj.SR),
		trans: make(map[transformKey]proj.Transformer),
	}, nil
}

// Codes lists the explicitly registered codes. UTM codes are generated on demand
// and not included.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Definition returns the proj4 string for code.
func (r *Registry) Definition(code string) (string, error) {
	c, err := Normalize(code)
	if err != nil {
		return "", err
	}
	if def, ok := r.defs[c]; ok {
		return def, nil
	}
	if zone, north, ok := ParseUTM(c); ok {
		return utmProj4(zone, north), nil
	}
	return "", eris.Wrapf(ErrUnsupportedCRS, "crs: no definition for EPSG:%s", c)
}

// Validate checks that code resolves to a parsable coordinate system.
func (r *Registry) Validate(code string) error {
	_, err := r.sr(code)
	return err
}

func (r *Registry) sr(code string) (*proj.SR, error) {
	c, err := Normalize(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sr, ok := r.srs[c]; ok {
		return sr, nil
	}
	def, err := r.Definition(c)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "crs: parse EPSG:%s: %v", c, err)
	}
	r.srs[c] = sr
	return sr, nil
}

// transformer returns the cached src -> dst transform. Pairs where neither side
// is WGS 84 are composed of two legs through WGS 84; proj cannot go straight
// from a datum-shifted grid such as 27700 into web mercator.
func (r *Registry) transformer(src, dst string) (proj.Transformer, error) {
	key := transformKey{src: src, dst: dst}

	r.mu.Lock()
	t, ok := r.trans[key]
	r.mu.Unlock()
	if ok {
		return t, nil
	}

	var err error
	if src == WGS84 || dst == WGS84 {
		t, err = r.direct(src, dst)
	} else {
		t, err = r.viaWGS84(src, dst)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.trans[key] = t
	r.mu.Unlock()
	return t, nil
}

func (r *Registry) viaWGS84(src, dst string) (proj.Transformer, error) {
	toGeo, err := r.transformer(src, WGS84)
	if err != nil {
		return nil, err
	}
	fromGeo, err := r.transformer(WGS84, dst)
	if err != nil {
		return nil, err
	}
	return func(x, y float64) (float64, float64, error) {
		lon, lat, err := toGeo(x, y)
		if err != nil {
			return 0, 0, err
		}
		return fromGeo(lon, lat)
	}, nil
}

func (r *Registry) direct(src, dst string) (proj.Transformer, error) {
	from, err := r.sr(src)
	if err != nil {
		return nil, err
	}
	to, err := r.sr(dst)
	if err != nil {
		return nil, err
	}
	t, err := from.NewTransform(to)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedCRS, "crs: transform EPSG:%s -> EPSG:%s: %v", src, dst, err)
	}
	return t, nil
}

// Reproject returns a new Geometry expressed in target. Reprojecting into the
// geometry's own CRS returns an unchanged copy.
func (r *Registry) Reproject(g geometry.Geometry, target string) (geometry.Geometry, error) {
	dst, err := Normalize(target)
	if err != nil {
		return geometry.Geometry{}, err
	}
	src, err := Normalize(g.EPSG())
	if err != nil {
		return geometry.Geometry{}, eris.Wrap(err, "crs: source geometry")
	}
	if err := r.Validate(dst); err != nil {
		return geometry.Geometry{}, err
	}
	if src == dst {
		return geometry.New(g.MultiPolygon(), dst), nil
	}

	t, err := r.transformer(src, dst)
	if err != nil {
		return geometry.Geometry{}, err
	}

	out, err := g.MapCoords(dst, func(x, y float64) (float64, float64, error) {
		return t(x, y)
	})
	if err != nil {
		return geometry.Geometry{}, eris.Wrapf(err, "crs: reproject EPSG:%s -> EPSG:%s", src, dst)
	}

	zap.L().Debug("crs: reprojected geometry",
		zap.String("from", src),
		zap.String("to", dst),
		zap.Int("polygons", out.NumPolygons()),
	)
	return out, nil
}
