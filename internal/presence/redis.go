package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ridehail"
)

// RedisIndex keeps driver positions in a redis GEO set and availability
// flags in a per-driver hash, so presence survives a process restart and a
// separate ingest worker can write the same layout.
type RedisIndex struct {
	client *redis.Client
	geoKey string
}

func NewRedisIndex(client *redis.Client, geoKey string) *RedisIndex {
	return &RedisIndex{client: client, geoKey: geoKey}
}

func flagsKey(id string) string { return "driver:presence:" + id }

func (r *RedisIndex) UpsertLocation(ctx context.Context, driverID string, lat, lon float64) error {
	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{Longitude: lon, Latitude: lat, Name: driverID}).Result(); err != nil {
		return err
	}
	fields := map[string]interface{}{"last_updated": time.Now().UTC().Format(time.RFC3339)}
	// first sighting defaults, set only when the hash does not exist yet
	exists, err := r.client.Exists(ctx, flagsKey(driverID)).Result()
	if err == nil && exists == 0 {
		fields["online"] = "true"
		fields["available"] = "true"
		fields["on_ride"] = "false"
	}
	return r.client.HSet(ctx, flagsKey(driverID), fields).Err()
}

func (r *RedisIndex) SetAvailability(ctx context.Context, driverID string, online, available, onRide bool) error {
	online, available, onRide = normalize(online, available, onRide)
	return r.client.HSet(ctx, flagsKey(driverID), map[string]interface{}{
		"online":       strconv.FormatBool(online),
		"available":    strconv.FormatBool(available),
		"on_ride":      strconv.FormatBool(onRide),
		"last_updated": time.Now().UTC().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Get(ctx context.Context, driverID string) (models.DriverPresence, error) {
	m, err := r.client.HGetAll(ctx, flagsKey(driverID)).Result()
	if err != nil {
		return models.DriverPresence{}, err
	}
	if len(m) == 0 {
		return models.DriverPresence{}, ridehail.ErrNotFound
	}
	d := presenceFromHash(driverID, m)
	pos, err := r.client.GeoPos(ctx, r.geoKey, driverID).Result()
	if err == nil && len(pos) == 1 && pos[0] != nil {
		d.Loc = models.Coord{Lat: pos[0].Latitude, Lon: pos[0].Longitude}
	}
	return d, nil
}

func (r *RedisIndex) QueryNearby(ctx context.Context, lat, lon, radiusMeters float64, f Filter) ([]models.DriverPresence, error) {
	res, err := r.client.GeoRadius(ctx, r.geoKey, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusMeters, Unit: "m", WithCoord: true, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverPresence, 0, len(res))
	for _, g := range res {
		m, err := r.client.HGetAll(ctx, flagsKey(g.Name)).Result()
		if err != nil {
			continue
		}
		d := presenceFromHash(g.Name, m)
		d.Loc = models.Coord{Lat: g.Latitude, Lon: g.Longitude}
		if !matches(d, f) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisIndex) Remove(ctx context.Context, driverID string) error {
	if err := r.client.ZRem(ctx, r.geoKey, driverID).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, flagsKey(driverID)).Err()
}

func presenceFromHash(id string, m map[string]string) models.DriverPresence {
	d := models.DriverPresence{DriverID: id}
	d.IsOnline = m["online"] == "true"
	d.IsAvailableForRide = m["available"] == "true"
	d.IsOnRide = m["on_ride"] == "true"
	if v, ok := m["last_updated"]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			d.LastUpdated = ts
		}
	}
	return d
}
