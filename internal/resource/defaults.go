package resource

// Built-in resources. Each query renders rows with row_to_json so timestamps
// follow the session time zone.
const (
	cameraPubQuery = `SELECT row_to_json(r)::text FROM (` +
		`SELECT name, publish, location, lat, lon ` +
		`FROM camera_view ORDER BY name) r`

	detectorQuery = `SELECT row_to_json(r)::text FROM (` +
		`SELECT name, r_node, cor_id, lane_number, field_length ` +
		`FROM detector_view ORDER BY name) r`

	dmsPubQuery = `SELECT row_to_json(r)::text FROM (` +
		`SELECT name, sign_config, roadway, road_dir, location, lat, lon ` +
		`FROM dms_view ORDER BY name) r`

	dmsMessageQuery = `SELECT row_to_json(r)::text FROM (` +
		`SELECT name, msg_current, sources, duration, expire_time ` +
		`FROM dms_message_view WHERE condition = 'Active' ORDER BY name) r`

	incidentQuery = `SELECT row_to_json(r)::text FROM (` +
		`SELECT name, event_date, description, road, direction, lane_type, ` +
		`impact, confirmed, camera, detail, replaces, lat, lon ` +
		`FROM incident_view WHERE cleared = false ORDER BY event_date) r`

	signConfigQuery = `SELECT row_to_json(r)::text FROM (` +
		`SELECT name, face_width, face_height, pixel_width, pixel_height, ` +
		`char_width, char_height, default_font ` +
		`FROM sign_config_view ORDER BY name) r`

	fontQuery = `SELECT name, row_to_json(f)::text FROM (` +
		`SELECT name, f_number, height, width, line_spacing, char_spacing ` +
		`FROM font_view ORDER BY name) f`

	graphicQuery = `SELECT name, row_to_json(g)::text FROM (` +
		`SELECT name, g_number, color_scheme, height, width, pixels ` +
		`FROM graphic_view ORDER BY name) g`
)

// Defaults returns the built-in resources in bootstrap order
func Defaults() []Resource {
	return []Resource{
		NewListResource("camera_pub", cameraPubQuery),
		NewListResource("detector", detectorQuery),
		NewListResource("dms_pub", dmsPubQuery),
		NewListResource("dms_message", dmsMessageQuery),
		NewListResource("incident", incidentQuery),
		NewListResource("sign_config", signConfigQuery),
		NewDirResource("font", fontQuery),
		NewDirResource("graphic", graphicQuery),
	}
}
