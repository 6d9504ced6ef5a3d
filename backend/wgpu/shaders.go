// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

// Shared declarations of the buffer programs. Params mirrors the scalar
// kernel arguments and is padded to 32 bytes for uniform layout rules.
const commonWGSL = `
struct Params {
    channels: u32,
    mask: u32,
    klen: u32,
    width: u32,
    height: u32,
    stride: u32,
    _pad0: u32,
    _pad1: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<storage, read> weights: array<f32>;
@group(0) @binding(3) var<storage, read_write> dst: array<f32>;

fn load(x: i32, y: i32) -> vec4<f32> {
    let cx = u32(clamp(x, 0, i32(params.width) - 1));
    let cy = u32(clamp(y, 0, i32(params.height) - 1));
    let i = cy * params.stride + cx * 4u;
    return vec4<f32>(src[i], src[i + 1u], src[i + 2u], src[i + 3u]);
}

fn blend(sum: vec4<f32>, center: vec4<f32>) -> vec4<f32> {
    var m = params.mask;
    if (params.channels < 4u) {
        m = m & ((1u << params.channels) - 1u);
    }
    let keep = vec4<bool>((m & 1u) != 0u, (m & 2u) != 0u, (m & 4u) != 0u, (m & 8u) != 0u);
    return select(center, sum, keep);
}

fn store(x: u32, y: u32, p: vec4<f32>) {
    let i = y * params.stride + x * 4u;
    dst[i] = p.x;
    dst[i + 1u] = p.y;
    dst[i + 2u] = p.z;
    dst[i + 3u] = p.w;
}
`

// linearWGSL reads every tap from the source buffer.
const linearWGSL = commonWGSL + `
@compute @workgroup_size(ROW_LOCAL_SIZE, 1, 1)
fn BlurRow(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.width || gid.y >= params.height) {
        return;
    }
    let c = i32(params.klen - 1u) / 2;
    let x = i32(gid.x);
    let y = i32(gid.y);
    var sum = vec4<f32>(0.0);
    for (var k = 0u; k < params.klen; k = k + 1u) {
        sum = sum + load(x + i32(k) - c, y) * weights[k];
    }
    store(gid.x, gid.y, blend(sum, load(x, y)));
}

@compute @workgroup_size(1, COLUMN_LOCAL_SIZE, 1)
fn BlurColumn(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.width || gid.y >= params.height) {
        return;
    }
    let c = i32(params.klen - 1u) / 2;
    let x = i32(gid.x);
    let y = i32(gid.y);
    var sum = vec4<f32>(0.0);
    for (var k = 0u; k < params.klen; k = k + 1u) {
        sum = sum + load(x, y + i32(k) - c) * weights[k];
    }
    store(gid.x, gid.y, blend(sum, load(x, y)));
}
`

// tiledWGSL stages the group span plus the kernel halo in workgroup memory.
// Cache sizes are fixed at build time from the kernel length and the
// work-group extents.
const tiledWGSL = commonWGSL + `
var<workgroup> row_cache: array<vec4<f32>, ROW_CACHE_SIZE>;
var<workgroup> column_cache: array<vec4<f32>, COLUMN_CACHE_SIZE>;

@compute @workgroup_size(ROW_LOCAL_SIZE, 1, 1)
fn BlurRow(
    @builtin(global_invocation_id) gid: vec3<u32>,
    @builtin(local_invocation_id) lid: vec3<u32>,
    @builtin(workgroup_id) wid: vec3<u32>,
) {
    let span = ROW_LOCAL_SIZEu;
    let start = i32(wid.x * span);
    let c = i32(params.klen - 1u) / 2;
    let y = i32(min(gid.y, params.height - 1u));
    for (var i = lid.x; i < span + params.klen - 1u; i = i + span) {
        row_cache[i] = load(start - c + i32(i), y);
    }
    workgroupBarrier();
    if (gid.x >= params.width || gid.y >= params.height) {
        return;
    }
    var sum = vec4<f32>(0.0);
    for (var k = 0u; k < params.klen; k = k + 1u) {
        sum = sum + row_cache[lid.x + k] * weights[k];
    }
    store(gid.x, gid.y, blend(sum, row_cache[lid.x + u32(c)]));
}

@compute @workgroup_size(1, COLUMN_LOCAL_SIZE, 1)
fn BlurColumn(
    @builtin(global_invocation_id) gid: vec3<u32>,
    @builtin(local_invocation_id) lid: vec3<u32>,
    @builtin(workgroup_id) wid: vec3<u32>,
) {
    let span = COLUMN_LOCAL_SIZEu;
    let start = i32(wid.y * span);
    let c = i32(params.klen - 1u) / 2;
    let x = i32(min(gid.x, params.width - 1u));
    for (var i = lid.y; i < span + params.klen - 1u; i = i + span) {
        column_cache[i] = load(x, start - c + i32(i));
    }
    workgroupBarrier();
    if (gid.x >= params.width || gid.y >= params.height) {
        return;
    }
    var sum = vec4<f32>(0.0);
    for (var k = 0u; k < params.klen; k = k + 1u) {
        sum = sum + column_cache[lid.y + k] * weights[k];
    }
    store(gid.x, gid.y, blend(sum, column_cache[lid.y + u32(c)]));
}
`
