package renderer

// Shader entry points shared by both modules.
const (
	VertexEntry   = "vertex"
	FragmentEntry = "fragment"
)

// MapShader resolves fragments to tiles through the tile-index texture
// and samples the layered color atlas.
//
// Bind groups: 0 camera, 1 atlas + sampler, 2 tile-index texture.
const MapShader = `
struct Camera {
    view_proj: mat4x4<f32>,
    eye: vec3<f32>,
}

@group(0) @binding(0) var<uniform> camera: Camera;
@group(1) @binding(0) var atlas: texture_2d_array<f32>;
@group(1) @binding(1) var atlas_sampler: sampler;
@group(2) @binding(0) var tile_index: texture_2d<u32>;

struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) tex_coords: vec3<f32>,
}

struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) tex_coords: vec3<f32>,
    @location(1) z: f32,
}

@vertex
fn vertex(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip_position = camera.view_proj * vec4<f32>(in.position, 1.0);
    out.tex_coords = in.tex_coords;
    out.z = in.position.z;
    return out;
}

@fragment
fn fragment(in: VertexOutput) -> @location(0) vec4<f32> {
    let yoffset = abs((i32(round(in.z)) - 8) * 32);
    let tile_pos = vec2<i32>(
        i32(floor(in.tex_coords.x / 16.0)),
        i32(floor(in.tex_coords.y / 16.0)) + yoffset,
    );
    let tile = textureLoad(tile_index, tile_pos, 0);
    let id = tile.r;
    let atlas_px = vec2<f32>(
        f32((id % 128u) * 16u) + (in.tex_coords.x % 16.0),
        f32((id / 128u) * 16u) + (in.tex_coords.y % 16.0),
    );
    let uv = atlas_px / 2048.0;
    let color = textureSample(atlas, atlas_sampler, uv, i32(tile.g));
    let alpha = mix(1.0, color.a, f32(tile.a) / 100.0);
    return vec4<f32>(color.rgb, color.a);
}
`

// TextShader magnifies the glyph atlas with a four-tap filter and
// discards fragments without coverage.
//
// Bind groups: 0 camera + globals, 1 glyph atlas + sampler.
const TextShader = `
struct Camera {
    view_proj: mat4x4<f32>,
    eye: vec3<f32>,
}

struct Globals {
    screen_resolution: vec2<f32>,
    time: f32,
}

@group(0) @binding(0) var<uniform> camera: Camera;
@group(0) @binding(1) var<uniform> globals: Globals;
@group(1) @binding(0) var glyphs: texture_2d_array<f32>;
@group(1) @binding(1) var glyph_sampler: sampler;

struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec3<f32>,
    @location(2) color: vec4<u32>,
}

struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) uv: vec3<f32>,
    @location(1) color: vec4<f32>,
    @location(2) tint: vec4<f32>,
    @location(3) @interpolate(flat) size: vec2<f32>,
}

@vertex
fn vertex(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    let dims = textureDimensions(glyphs);
    let size = vec2<f32>(f32(dims.x), f32(dims.y));
    out.clip_position = camera.view_proj * vec4<f32>(in.position, 1.0);
    out.uv = vec3<f32>(in.uv.xy / size, in.uv.z);
    out.color = vec4<f32>(1.0, 1.0, 1.0, 1.0);
    out.tint = vec4<f32>(in.color) / 255.0;
    out.size = size;
    return out;
}

@fragment
fn fragment(in: VertexOutput) -> @location(0) vec4<f32> {
    let tex_pixel = in.size * in.uv.xy - vec2<f32>(0.5, 0.5);
    let corner = floor(tex_pixel) + vec2<f32>(1.0, 1.0);
    let frac = min((corner - tex_pixel) * 2.0, vec2<f32>(1.0, 1.0));
    let layer = i32(in.uv.z);

    let c00 = textureSample(glyphs, glyph_sampler, (floor(tex_pixel + vec2<f32>(0.0, 0.0)) + 0.5) / in.size, layer);
    let c10 = textureSample(glyphs, glyph_sampler, (floor(tex_pixel + vec2<f32>(1.0, 0.0)) + 0.5) / in.size, layer);
    let c01 = textureSample(glyphs, glyph_sampler, (floor(tex_pixel + vec2<f32>(0.0, 1.0)) + 0.5) / in.size, layer);
    let c11 = textureSample(glyphs, glyph_sampler, (floor(tex_pixel + vec2<f32>(1.0, 1.0)) + 0.5) / in.size, layer);

    let sum = c00 * (frac.x * frac.y)
        + c10 * ((1.0 - frac.x) * frac.y)
        + c01 * (frac.x * (1.0 - frac.y))
        + c11 * ((1.0 - frac.x) * (1.0 - frac.y));

    if (sum.r <= 0.0) {
        discard;
    }
    return in.color * sum.r;
}
`
